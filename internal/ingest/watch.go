package ingest

import (
	"context"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/logctx"

	"golang.org/x/sys/unix"
)

const watchPollMillis int = 500

// Signals changed whenever the file is written to
func watch(ctx context.Context, path string, changed chan<- struct{}) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "failed to initialize inotify: %v\n", err)
		return
	}
	defer unix.Close(fd)

	watchDescriptor, err := unix.InotifyAddWatch(fd, path, unix.IN_MODIFY|unix.IN_CLOSE_WRITE)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "failed to add record file '%s' to inotify watcher: %v\n", path, err)
		return
	}
	defer unix.InotifyRmWatch(fd, uint32(watchDescriptor))

	buf := make([]byte, unix.SizeofInotifyEvent*64+unix.NAME_MAX+1)
	poll := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ready, err := unix.Poll(poll, watchPollMillis)
		if err == unix.EINTR || ready == 0 {
			continue
		}
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "error waiting for inotify events: %v\n", err)
			return
		}

		n, err := unix.Read(fd, buf)
		if err == unix.EAGAIN {
			continue
		}
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "error reading inotify event: %v\n", err)
			return
		}
		if n < unix.SizeofInotifyEvent {
			continue
		}

		select {
		case changed <- struct{}{}:
		default:
		}
	}
}
