// Package tasks implements NovaPipe's built-in task library, registered
// into internal/registry at program start.
package tasks

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/muqtarM/novapipe/internal/registry"
)

// RegisterBuiltins registers every built-in task under its name. Called once
// from cmd/novapipe's entry point, mirroring the teacher's init-time plugin
// registration.
func RegisterBuiltins() {
	registry.Register("print_message", printMessage)
	registry.Register("async_wait_and_print", asyncWaitAndPrint)
	registry.Register("maybe_fail", maybeFail)
	registry.Register("create_temp_dir", createTempDir)
	registry.Register("write_text_file", writeTextFile)
	registry.Register("count_file_lines", countFileLines)
	registry.Register("return_value", returnValue)
	registry.Register("wrap_text", wrapText)
	registry.Register("echo", echo)
	registry.Register("analyze_data", analyzeData)
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return fallback
}

func printMessage(_ context.Context, params map[string]any) (any, error) {
	fmt.Println(stringParam(params, "message", ""))
	return nil, nil
}

func asyncWaitAndPrint(ctx context.Context, params map[string]any) (any, error) {
	seconds := 1.0
	if v, ok := params["seconds"]; ok {
		if f, ok := toFloat(v); ok {
			seconds = f
		}
	}
	message := stringParam(params, "message", "")

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	fmt.Println(message)
	return nil, nil
}

func maybeFail(_ context.Context, params map[string]any) (any, error) {
	attemptID := params["attempt_id"]
	if rand.Float64() < 0.5 {
		return nil, fmt.Errorf("simulated failure for attempt_id=%v", attemptID)
	}
	fmt.Printf("maybe_fail succeeded (attempt_id=%v)\n", attemptID)
	return nil, nil
}

func createTempDir(_ context.Context, params map[string]any) (any, error) {
	base := stringParam(params, "base", "")
	if base != "" {
		info, err := os.Stat(base)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("base directory %q does not exist", base)
		}
	}
	dir, err := os.MkdirTemp(base, "novapipe_")
	if err != nil {
		return nil, err
	}
	return dir, nil
}

func writeTextFile(_ context.Context, params map[string]any) (any, error) {
	path := stringParam(params, "path", "")
	content := stringParam(params, "content", "")
	if path == "" {
		return nil, fmt.Errorf("missing 'path' in params for write_text_file")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return path, nil
}

func countFileLines(_ context.Context, params map[string]any) (any, error) {
	path := stringParam(params, "path", "")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %q", path)
	}
	if len(data) == 0 {
		return int64(0), nil
	}
	count := int64(0)
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	if data[len(data)-1] != '\n' {
		count++
	}
	return count, nil
}

func returnValue(_ context.Context, params map[string]any) (any, error) {
	return params["value"], nil
}

func wrapText(_ context.Context, params map[string]any) (any, error) {
	input := stringParam(params, "input", "")
	return fmt.Sprintf("WRAPPED: %q", input), nil
}

func echo(_ context.Context, params map[string]any) (any, error) {
	message := stringParam(params, "message", "")
	fmt.Println(message)
	return message, nil
}

func analyzeData(_ context.Context, _ map[string]any) (any, error) {
	return map[string]any{
		"row_count":    int64(123),
		"column_count": int64(10),
		"output_path":  "/tmp/novapipe_out.csv",
	}, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
