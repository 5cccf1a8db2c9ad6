package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeepCopy(t *testing.T) {
	orig := map[string]any{
		"a":    1,
		"list": []any{"x", map[string]any{"n": 2}},
		"tags": []string{"t1"},
		"sub":  map[string]any{"k": "v"},
	}

	cp := DeepCopy(orig).(map[string]any)
	assert.Equal(t, orig, cp)

	cp["a"] = 99
	cp["sub"].(map[string]any)["k"] = "changed"
	cp["list"].([]any)[1].(map[string]any)["n"] = 3
	cp["tags"].([]string)[0] = "t2"

	assert.Equal(t, 1, orig["a"])
	assert.Equal(t, "v", orig["sub"].(map[string]any)["k"])
	assert.Equal(t, 2, orig["list"].([]any)[1].(map[string]any)["n"])
	assert.Equal(t, "t1", orig["tags"].([]string)[0])
}

func TestCopyMap_Nil(t *testing.T) {
	assert.Nil(t, CopyMap(nil))
	assert.Equal(t, "scalar", DeepCopy("scalar"))
}

func TestDeepCopy_SliceOfMaps(t *testing.T) {
	orig := []map[string]any{{"v": 1}}
	cp := DeepCopy(orig).([]map[string]any)
	cp[0]["v"] = 99
	assert.Equal(t, 1, orig[0]["v"])
}
