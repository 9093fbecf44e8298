package logctx

import (
	"context"
	"ipdrexporter/internal/global"
)

// Append new tags to the tag list.
// Copy-on-write so parent contexts keep their list.
func AppendCtxTag(ctx context.Context, newTags ...string) (newCtx context.Context) {
	old := GetTagList(ctx)
	tags := make([]string, 0, len(old)+len(newTags))
	tags = append(append(tags, old...), newTags...)

	newCtx = context.WithValue(ctx, global.LogTagsKey, tags)
	return
}

// Removes last index of tag list (copy-on-write)
func RemoveLastCtxTag(ctx context.Context) (newCtx context.Context) {
	old := GetTagList(ctx)
	if len(old) > 0 {
		old = old[:len(old)-1]
	}
	tags := make([]string, 0, len(old))
	tags = append(tags, old...)

	newCtx = context.WithValue(ctx, global.LogTagsKey, tags)
	return
}

// Overwrites entire tag list with given list
func OverwriteCtxTag(ctx context.Context, newList []string) (newCtx context.Context) {
	tags := make([]string, 0, len(newList))
	tags = append(tags, newList...)
	newCtx = context.WithValue(ctx, global.LogTagsKey, tags)
	return
}

// Extracts tag list from context or returns empty array
func GetTagList(ctx context.Context) (tags []string) {
	tags, validAssert := ctx.Value(global.LogTagsKey).([]string)
	if !validAssert {
		tags = []string{}
	}
	return
}
