package engine

import (
	"path/filepath"
	"strings"

	"forged/pkg/types"
)

// formatBySuffix is the fixed extension -> format table.
var formatBySuffix = map[string]types.ModelFormat{
	".onnx":        types.FormatONNX,
	".trt":         types.FormatCompiledEngine,
	".engine":      types.FormatCompiledEngine,
	".plan":        types.FormatCompiledEngine,
	".pt":          types.FormatCheckpointArchive,
	".pth":         types.FormatCheckpointArchive,
	".ckpt":        types.FormatCheckpointArchive,
	".safetensors": types.FormatSafeTensors,
	".gguf":        types.FormatGGUF,
}

// kindKeywords are scanned in order; the first group with a match wins.
var kindKeywords = []struct {
	kind  types.ModelKind
	words []string
}{
	{types.KindTextToImage, []string{"stable", "diffusion", "text2img"}},
	{types.KindImageUpscaling, []string{"upscale", "esrgan", "realesrgan"}},
	{types.KindTextGeneration, []string{"llm", "gpt", "llama"}},
}

// DetectFormat resolves a locator's format from its suffix (case-insensitive).
func DetectFormat(locator string) types.ModelFormat {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(locator)))
	if f, ok := formatBySuffix[ext]; ok {
		return f
	}
	return types.FormatUnknown
}

// DetectKind scans the locator text for known keyword groups.
func DetectKind(locator string) types.ModelKind {
	lower := strings.ToLower(locator)
	for _, g := range kindKeywords {
		for _, w := range g.words {
			if strings.Contains(lower, w) {
				return g.kind
			}
		}
	}
	return types.KindUnknown
}

// ResolveKind returns hint when it is set, otherwise the keyword scan result.
func ResolveKind(locator string, hint types.ModelKind) types.ModelKind {
	if hint != "" && hint != types.KindUnknown {
		return hint
	}
	return DetectKind(locator)
}
