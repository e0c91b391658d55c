package main

import (
	"fmt"

	"github.com/voxguide/voxguide/internal/config"
	"github.com/voxguide/voxguide/pkg/provider/stt"
	"github.com/voxguide/voxguide/pkg/provider/stt/deepgram"
	"github.com/voxguide/voxguide/pkg/provider/tts"
	"github.com/voxguide/voxguide/pkg/provider/tts/elevenlabs"
	"github.com/voxguide/voxguide/pkg/provider/tts/local"
	"github.com/voxguide/voxguide/pkg/provider/tts/openaitts"
)

// buildTTS constructs the synthesis backend named by the entry.
func buildTTS(e config.ProviderEntry) (tts.Provider, error) {
	switch e.Name {
	case "elevenlabs":
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		return elevenlabs.New(e.APIKey, opts...)
	case "openai":
		var opts []openaitts.Option
		if e.Model != "" {
			opts = append(opts, openaitts.WithModel(e.Model))
		}
		return openaitts.New(e.APIKey, opts...)
	case "local":
		return local.New(), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", e.Name)
	}
}

// buildSTT constructs the recognition backend named by the entry.
func buildSTT(e config.ProviderEntry) (stt.Provider, error) {
	switch e.Name {
	case "deepgram":
		var opts []deepgram.Option
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		return deepgram.New(e.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", e.Name)
	}
}
