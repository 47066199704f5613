package functional

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

func aBootstrapConfigNamingAsAStubPackage(ctx context.Context, stubList string) (context.Context, error) {
	state := getState(ctx)
	return ctx, writeConfig(state, strings.Split(stubList, ","), nil)
}

func aBootstrapConfigNamingStubAndBasePackages(ctx context.Context, stubList, baseList string) (context.Context, error) {
	state := getState(ctx)
	return ctx, writeConfig(state, strings.Split(stubList, ","), strings.Split(baseList, ","))
}

func writeConfig(state *testState, stubs, base []string) error {
	var b strings.Builder
	b.WriteString("stub_packages = [" + quoteList(stubs) + "]\n")
	if len(base) > 0 {
		b.WriteString("base_packages = [" + quoteList(base) + "]\n")
	}
	state.configPath = filepath.Join(state.workDir, "bootstrap.toml")
	return os.WriteFile(state.configPath, []byte(b.String()), 0o644)
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = strconv.Quote(strings.TrimSpace(n))
	}
	return strings.Join(quoted, ", ")
}

// theMirrorHasNoPackage is a documentation step for scenarios that reference
// a package absent from the fixture universe; the fixture mirror already
// excludes anything not in fixtureUniverse, so this step only needs to
// verify the caller's assumption.
func theMirrorHasNoPackage(ctx context.Context, name string) error {
	for _, pkg := range fixtureUniverse {
		if pkg.name == name {
			return fmt.Errorf("fixture mirror unexpectedly has package %q", name)
		}
	}
	return nil
}

func anIncludeFileListing(ctx context.Context, names string) (context.Context, error) {
	state := getState(ctx)
	path := filepath.Join(state.workDir, "extra-packages.txt")
	content := strings.ReplaceAll(names, ",", "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, includeFileKey{}, path), nil
}

type includeFileKey struct{}

func iRunRootstrapBootstrapWith(ctx context.Context, branch, flags string) (context.Context, error) {
	state := getState(ctx)
	if state == nil {
		return ctx, fmt.Errorf("no test state; is the Before hook running?")
	}
	if state.configPath == "" {
		if err := writeConfig(state, []string{"base-files"}, nil); err != nil {
			return ctx, err
		}
	}

	args := []string{"bootstrap",
		"--mirror", state.mirrorURL,
		"--arch", "amd64",
		"--config", state.configPath,
	}
	for _, f := range strings.Fields(flags) {
		args = append(args, f)
	}
	if includeFile, ok := ctx.Value(includeFileKey{}).(string); ok {
		args = append(args, "--include-files", includeFile)
	}
	args = append(args, branch, state.target)

	cmd := exec.Command(state.binPath, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	state.stdout = stdout.String()
	state.stderr = stderr.String()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			state.exitCode = exitErr.ExitCode()
		} else {
			return ctx, fmt.Errorf("command execution failed: %w", err)
		}
	} else {
		state.exitCode = 0
	}
	return ctx, nil
}

func theExitCodeIs(ctx context.Context, expected int) error {
	state := getState(ctx)
	if state.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nstdout: %s\nstderr: %s",
			expected, state.exitCode, state.stdout, state.stderr)
	}
	return nil
}

func theExitCodeIsNot(ctx context.Context, notExpected int) error {
	state := getState(ctx)
	if state.exitCode == notExpected {
		return fmt.Errorf("expected exit code to not be %d\nstdout: %s\nstderr: %s",
			notExpected, state.stdout, state.stderr)
	}
	return nil
}

func theOutputContains(ctx context.Context, text string) error {
	state := getState(ctx)
	if !strings.Contains(state.stdout, text) {
		return fmt.Errorf("expected stdout to contain %q, got:\n%s", text, state.stdout)
	}
	return nil
}

func theErrorOutputContains(ctx context.Context, text string) error {
	state := getState(ctx)
	if !strings.Contains(state.stderr, text) {
		return fmt.Errorf("expected stderr to contain %q, got:\n%s", text, state.stderr)
	}
	return nil
}

func theFileExistsInTarget(ctx context.Context, path string) error {
	state := getState(ctx)
	full := filepath.Join(state.target, path)
	if _, err := os.Lstat(full); err != nil {
		return fmt.Errorf("expected file %q to exist: %w", full, err)
	}
	return nil
}

func theFileDoesNotExistInTarget(ctx context.Context, path string) error {
	state := getState(ctx)
	full := filepath.Join(state.target, path)
	if _, err := os.Lstat(full); err == nil {
		return fmt.Errorf("expected file %q not to exist", full)
	}
	return nil
}
