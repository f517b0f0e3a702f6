package llmprovider

import (
	"testing"
)

type testClient struct {
	key string
}

func TestClientCache_ReusesClientForSameCredential(t *testing.T) {
	var cache ClientCache[*testClient]
	builds := 0
	build := func(key string) *testClient {
		builds++
		return &testClient{key: key}
	}

	first := cache.Get("k1", build)
	second := cache.Get("k1", build)
	if first != second || builds != 1 {
		t.Errorf("expected one build, got %d", builds)
	}

	rotated := cache.Get("k2", build)
	if rotated == first || rotated.key != "k2" || builds != 2 {
		t.Errorf("credential change must build a new client")
	}
	if first.key != "k1" {
		t.Error("existing clients must not be mutated")
	}

	cache.Reset()
	if cache.Get("k2", build) == rotated || builds != 3 {
		t.Error("Reset must drop the cached client")
	}
}
