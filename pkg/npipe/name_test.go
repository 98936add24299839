package npipe

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/moby/npipe/pkg/npipe/npipetest"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

var nameRegexp = regexp.MustCompile(`^\\\\\.\\pipe\\pipe_[0-9]+_[A-Za-z0-9]{15}$`)

func TestGenerateNameFormat(t *testing.T) {
	name := GenerateName()
	assert.Check(t, is.Regexp(nameRegexp, name))
	assert.Check(t, strings.HasPrefix(name, NamePrefix+strconv.Itoa(os.Getpid())+"_"), name)
}

func TestCreateDoesNotCollide(t *testing.T) {
	const count = 10000
	tr := npipetest.New()
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		p, err := Create(KeepOnDiscard, WithTransport(tr))
		assert.NilError(t, err)
		if _, ok := seen[p.Path()]; ok {
			t.Fatalf("duplicate pipe name %s after %d pipes", p.Path(), len(seen))
		}
		seen[p.Path()] = struct{}{}
		assert.NilError(t, p.Close())
	}
}
