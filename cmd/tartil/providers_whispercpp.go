//go:build whispercpp

package main

import (
	"github.com/MrWong99/tartil/internal/config"
	"github.com/MrWong99/tartil/pkg/provider/asr"
	"github.com/MrWong99/tartil/pkg/provider/asr/whisper"
)

func init() {
	optionalProviders = append(optionalProviders, func(reg *config.Registry) {
		// model is the path of the ggml model file; options.model_path is
		// accepted too.
		reg.RegisterASR("whisper-native", func(entry config.ProviderEntry) (asr.Provider, error) {
			modelPath := entry.Model
			if modelPath == "" {
				modelPath = optString(entry.Options, "model_path")
			}
			var opts []whisper.NativeOption
			if lang := optString(entry.Options, "language"); lang != "" {
				opts = append(opts, whisper.WithNativeLanguage(lang))
			}
			return whisper.NewNative(modelPath, opts...)
		})
	})
}
