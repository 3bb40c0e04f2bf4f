package toolchain

import (
	"context"
	"strings"
	"testing"
	"time"

	"Hephaestus/internal/bridge"
)

func TestEchoReturnsPayload(t *testing.T) {
	payload := map[string]interface{}{"echo": "hello"}
	result, err := Echo(context.Background(), payload)
	if err != nil {
		t.Fatalf("Echo() error = %v", err)
	}
	got, ok := result.(map[string]interface{})
	if !ok || got["echo"] != "hello" {
		t.Errorf("expected payload back, got %v", result)
	}
}

func TestGenerateLevelLayout(t *testing.T) {
	result, err := GenerateLevelLayout(context.Background(), map[string]interface{}{
		"width":  float64(16), // JSON numbers decode as float64
		"height": float64(8),
		"theme":  "cave",
	})
	if err != nil {
		t.Fatalf("GenerateLevelLayout() error = %v", err)
	}
	layout := result.(map[string]interface{})
	if layout["width"] != 16 || layout["height"] != 8 {
		t.Errorf("dimensions not honored: %v", layout)
	}
	if layout["tileset"] != "cave_tiles" {
		t.Errorf("tileset should follow the theme, got %v", layout["tileset"])
	}

	if _, err := GenerateLevelLayout(context.Background(), map[string]interface{}{"width": -1}); err == nil {
		t.Error("negative dimensions should be rejected")
	}
}

func TestGenerateImageIsDeterministic(t *testing.T) {
	payload := map[string]interface{}{"prompt": "stone archway"}
	first, err := GenerateImage(context.Background(), payload)
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	second, _ := GenerateImage(context.Background(), map[string]interface{}{"prompt": "stone archway"})

	uriA := first.(map[string]interface{})["uri"].(string)
	uriB := second.(map[string]interface{})["uri"].(string)
	if uriA != uriB {
		t.Errorf("identical prompts must yield identical assets: %s != %s", uriA, uriB)
	}
	if !strings.HasPrefix(uriA, "assets://generated/") {
		t.Errorf("unexpected asset URI %s", uriA)
	}

	if _, err := GenerateImage(context.Background(), map[string]interface{}{}); err == nil {
		t.Error("missing prompt should be rejected")
	}
}

func TestAssembleScene(t *testing.T) {
	result, err := AssembleScene(context.Background(), map[string]interface{}{
		"layout": map[string]interface{}{"width": 16},
		"assets": []interface{}{"a", "b"},
	})
	if err != nil {
		t.Fatalf("AssembleScene() error = %v", err)
	}
	scene := result.(map[string]interface{})
	if scene["asset_count"] != 2 {
		t.Errorf("expected 2 assets, got %v", scene["asset_count"])
	}

	if _, err := AssembleScene(context.Background(), map[string]interface{}{}); err == nil {
		t.Error("missing layout should be rejected")
	}
}

func TestRegisterWiresAllHandlers(t *testing.T) {
	b := bridge.NewToolchainBridge("toolchain")
	t.Cleanup(func() { b.Shutdown(time.Second) })
	Register(b)

	for requestType := range Handlers() {
		payload := map[string]interface{}{
			"echo":   "x",
			"prompt": "x",
			"layout": "x",
		}
		future, err := b.SubmitRequest(context.Background(), requestType, payload, "")
		if err != nil {
			t.Fatalf("SubmitRequest(%s) error = %v", requestType, err)
		}
		if _, err := future.Await(time.Second); err != nil {
			t.Errorf("%s did not resolve: %v", requestType, err)
		}
	}
}
