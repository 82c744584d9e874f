package archive

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainedPath(t *testing.T) {
	root, err := CanonicalDir(t.TempDir())
	require.NoError(t, err)

	testCases := []struct {
		name      string
		entry     string
		want      string
		expectErr bool
	}{
		{name: "simple", entry: "a.txt", want: filepath.Join(root, "a.txt")},
		{name: "nested", entry: "dir/b.txt", want: filepath.Join(root, "dir", "b.txt")},
		{name: "backslashes", entry: `dir\c.txt`, want: filepath.Join(root, "dir", "c.txt")},
		{name: "inner_dotdot", entry: "dir/../d.txt", want: filepath.Join(root, "d.txt")},
		{name: "root_itself", entry: "./", want: root},
		{name: "leading_slash", entry: "/abs.txt", want: filepath.Join(root, "abs.txt")},
		{name: "traversal", entry: "../../evil.txt", expectErr: true},
		{name: "nested_traversal", entry: "dir/../../evil.txt", expectErr: true},
		{name: "parent_only", entry: "..", expectErr: true},
		{name: "null_byte", entry: "a\x00.txt", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ContainedPath(root, tc.entry)
			if tc.expectErr {
				assert.ErrorIs(t, err, ErrUnsafePath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestContainedPathSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root, err := CanonicalDir(t.TempDir())
	require.NoError(t, err)
	outside, err := CanonicalDir(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err = ContainedPath(root, "link/evil.txt")
	assert.ErrorIs(t, err, ErrUnsafePath)
}
