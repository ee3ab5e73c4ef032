package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteScript writes an executable /bin/sh script into a temp dir and
// returns its path. Used to fake the external image tool.
//
// The script receives the same arguments the real tool would:
//
//	--prompt P --cookie C --dir D --count N
func WriteScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-tool.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

// ArgParser is a shell snippet that exposes the tool arguments as $PROMPT,
// $COOKIE, $DIR and $COUNT. Prepend it to fake tool bodies.
const ArgParser = `while [ $# -gt 0 ]; do
  case "$1" in
    --prompt) PROMPT="$2"; shift 2 ;;
    --cookie) COOKIE="$2"; shift 2 ;;
    --dir) DIR="$2"; shift 2 ;;
    --count) COUNT="$2"; shift 2 ;;
    *) shift ;;
  esac
done`
