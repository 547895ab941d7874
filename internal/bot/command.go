package bot

import (
	"fmt"
	"strings"
)

// Kind is a closed set of button actions.
type Kind int

const (
	KindStart Kind = iota
	KindMenu
	KindSource
	KindVideos
	KindSelectVideo
	KindManageVideo
	KindDeleteVideo
	KindTarget
	KindNow
	KindLater
	KindJobs
	KindJob
	KindCancelJob
	KindCancelAll
	KindCancelAllConfirm
	KindSettings
	KindWhoAmI
	KindWatermark
	KindClear
	KindClearConfirm
)

// maxCallbackData is Telegram's limit for callback_data.
const maxCallbackData = 64

type Command struct {
	Kind Kind
	Arg  string
}

var simpleTokens = map[Kind]string{
	KindStart:            "start",
	KindMenu:             "menu",
	KindVideos:           "videos",
	KindNow:              "now",
	KindLater:            "later",
	KindJobs:             "jobs",
	KindCancelAll:        "cancelall",
	KindCancelAllConfirm: "cancelall!",
	KindSettings:         "settings",
	KindWhoAmI:           "whoami",
	KindWatermark:        "wm",
	KindClear:            "clear",
	KindClearConfirm:     "clear!",
}

var argPrefixes = map[Kind]string{
	KindSource:      "src",
	KindSelectVideo: "sel",
	KindManageVideo: "man",
	KindDeleteVideo: "del",
	KindTarget:      "tgt",
	KindJob:         "job",
	KindCancelJob:   "cancel",
}

var (
	simpleKinds = invert(simpleTokens)
	prefixKinds = invert(argPrefixes)
)

func invert(m map[Kind]string) map[string]Kind {
	out := make(map[string]Kind, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// Encode renders the command as callback data.
func (c Command) Encode() string {
	if tok, ok := simpleTokens[c.Kind]; ok {
		return tok
	}
	return argPrefixes[c.Kind] + ":" + c.Arg
}

func ParseCommand(data string) (Command, error) {
	if len(data) > maxCallbackData {
		return Command{}, fmt.Errorf("callback data too long: %d bytes", len(data))
	}
	if k, ok := simpleKinds[data]; ok {
		return Command{Kind: k}, nil
	}

	prefix, arg, ok := strings.Cut(data, ":")
	if !ok || arg == "" {
		return Command{}, fmt.Errorf("unknown command %q", data)
	}
	k, ok := prefixKinds[prefix]
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", data)
	}
	return Command{Kind: k, Arg: arg}, nil
}

// parseSlash maps chat commands like "/start" or "/start@reelbot".
func parseSlash(text string) (Command, bool) {
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}
	name, _, _ := strings.Cut(strings.Fields(text)[0][1:], "@")
	switch strings.ToLower(name) {
	case "start", "menu":
		return Command{Kind: KindStart}, true
	case "videos":
		return Command{Kind: KindVideos}, true
	case "jobs":
		return Command{Kind: KindJobs}, true
	case "settings":
		return Command{Kind: KindSettings}, true
	case "id", "whoami":
		return Command{Kind: KindWhoAmI}, true
	}
	return Command{}, false
}

// public reports whether a command may run for callers outside the allow list.
func (c Command) public() bool {
	return c.Kind == KindSettings || c.Kind == KindWhoAmI
}
