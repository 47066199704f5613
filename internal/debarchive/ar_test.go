package debarchive

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestARReader_IteratesMembers(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(arMagic)
	buildARMember(&buf, "debian-binary", []byte("2.0\n"))
	buildARMember(&buf, "control.tar.gz", []byte("xx"))

	ar, err := newARReader(&buf)
	require.NoError(t, err)

	e1, err := ar.next()
	require.NoError(t, err)
	assert.Equal(t, "debian-binary", e1.name)
	data, err := io.ReadAll(e1.r)
	require.NoError(t, err)
	assert.Equal(t, "2.0\n", string(data))

	e2, err := ar.next()
	require.NoError(t, err)
	assert.Equal(t, "control.tar.gz", e2.name)

	_, err = ar.next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestARReader_RejectsBadMagic(t *testing.T) {
	_, err := newARReader(bytes.NewReader([]byte("not an ar file.")))
	require.Error(t, err)
}
