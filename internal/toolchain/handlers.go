package toolchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"Hephaestus/internal/bridge"
)

// Handlers returns the explicit registry of toolchain request handlers, keyed
// by request type. Handlers are registered on a bridge at startup; nothing is
// discovered dynamically. The implementations here are deterministic stubs
// standing in for the real backends (diffusion pipeline, scene assembler):
// their contract is pure input -> result-or-error, so a production deployment
// swaps the function body, not the wiring.
func Handlers() map[string]bridge.HandlerFunc {
	return map[string]bridge.HandlerFunc{
		"echo":                  Echo,
		"generate_level_layout": GenerateLevelLayout,
		"generate_image":        GenerateImage,
		"assemble_scene":        AssembleScene,
	}
}

// CacheableTypes lists the request types whose results are idempotent and may
// be served from the bridge cache. Echo is excluded deliberately: it exists
// for liveness probes and tests, where re-execution is the point.
func CacheableTypes() []string {
	return []string{"generate_level_layout", "generate_image", "assemble_scene"}
}

// Register wires all handlers onto a bridge, marking the idempotent ones
// cacheable.
func Register(b *bridge.ToolchainBridge) {
	cacheable := make(map[string]bool)
	for _, t := range CacheableTypes() {
		cacheable[t] = true
	}
	for requestType, handler := range Handlers() {
		if cacheable[requestType] {
			b.RegisterCacheableHandler(requestType, handler)
		} else {
			b.RegisterHandler(requestType, handler)
		}
	}
}

// Echo returns its payload unchanged.
func Echo(_ context.Context, payload map[string]interface{}) (interface{}, error) {
	return payload, nil
}

// GenerateLevelLayout produces a tile layout from a level plan.
func GenerateLevelLayout(_ context.Context, payload map[string]interface{}) (interface{}, error) {
	width := intField(payload, "width", 32)
	height := intField(payload, "height", 32)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid layout dimensions %dx%d", width, height)
	}
	theme, _ := payload["theme"].(string)

	return map[string]interface{}{
		"width":   width,
		"height":  height,
		"theme":   theme,
		"tileset": theme + "_tiles",
		"seed":    contentSeed(payload),
	}, nil
}

// GenerateImage produces an asset descriptor for a prompt. The URI is derived
// from the prompt content so identical prompts yield identical assets, which
// is what makes this request type safely cacheable.
func GenerateImage(_ context.Context, payload map[string]interface{}) (interface{}, error) {
	prompt, _ := payload["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("generate_image requires a prompt")
	}

	seed := contentSeed(payload)
	return map[string]interface{}{
		"prompt": prompt,
		"uri":    "assets://generated/" + seed + ".png",
		"seed":   seed,
	}, nil
}

// AssembleScene combines generated assets into a scene manifest for the
// engine-side importer.
func AssembleScene(_ context.Context, payload map[string]interface{}) (interface{}, error) {
	assets, _ := payload["assets"].([]interface{})
	layout, hasLayout := payload["layout"]
	if !hasLayout {
		return nil, fmt.Errorf("assemble_scene requires a layout")
	}

	return map[string]interface{}{
		"layout":      layout,
		"asset_count": len(assets),
		"assets":      assets,
		"manifest":    "scene://" + contentSeed(payload),
	}, nil
}

// intField reads a numeric payload field, tolerating the float64 that JSON
// decoding produces for every number.
func intField(payload map[string]interface{}, key string, fallback int) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// contentSeed derives a short stable identifier from the payload content.
func contentSeed(payload map[string]interface{}) string {
	fp, err := bridge.Fingerprint("seed", payload)
	if err != nil {
		sum := sha256.Sum256([]byte(fmt.Sprint(payload)))
		return hex.EncodeToString(sum[:8])
	}
	return fp[:16]
}
