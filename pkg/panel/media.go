package panel

import (
	"net/url"

	"mediarelay/pkg/catalog"
	"mediarelay/pkg/chat"
	"mediarelay/pkg/media"
)

// SingleUpload is the upload panel for one item: the item echoed back with the unified
// keyboard, first channel preselected.
func SingleUpload(ref media.Ref, channels []catalog.Channel, dirs []string) chat.Media {
	return chat.Media{
		Kind:     ref.Kind,
		Source:   ref.SourceID,
		Caption:  SinglePrompt,
		Keyboard: Unified(channels, dirs, catalog.DefaultChannel(channels), false),
	}
}

// RandomPick shows one random file with the viewer controls. Videos are sent streamable.
func RandomPick(link string, scope string, correlation string) chat.Media {
	name := link
	if u, err := url.Parse(link); err == nil {
		name = u.Path
	}

	kind := media.KindFromName(name)
	return chat.Media{
		Kind:      kind,
		Source:    link,
		Caption:   RandomCaption(scope),
		Keyboard:  RandomControls(scope, correlation),
		Streaming: kind == media.KindVideo,
	}
}
