package resourcecache

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(DefaultManifest)

	tests := []struct {
		url      string
		tier     Tier
		policy   Policy
		fallback bool
	}{
		{url: "https://site.example/", tier: TierStatic, policy: CacheFirst},
		{url: "https://site.example/index.html", tier: TierStatic, policy: CacheFirst},
		{url: "https://site.example/manifest.json", tier: TierStatic, policy: CacheFirst},
		{url: "https://site.example/assets/css/main.css", tier: TierStatic, policy: CacheFirst},
		{url: "https://site.example/img/Logo.PNG", tier: TierStatic, policy: CacheFirst},
		{url: "https://fonts.gstatic.com/s/roboto.woff2", tier: TierStatic, policy: CacheFirst},
		{url: "https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.4.0/css/all.min.css", tier: TierStatic, policy: CacheFirst},
		{url: "https://site.example/api/stats?userId=u1", tier: TierAPI, policy: NetworkFirst},
		{url: "https://site.example/api/user/profile", tier: TierAPI, policy: NetworkFirst},
		{url: "https://site.example/api/videos", tier: TierAPI, policy: NetworkFirst},
		{url: "https://fonts.googleapis.com/css2?family=Noto+Sans", tier: TierDynamic, policy: NetworkFirst},
		{url: "https://site.example/video1", tier: TierDynamic, policy: NetworkFirst, fallback: true},
		{url: "https://site.example/api/other", tier: TierDynamic, policy: NetworkFirst, fallback: true},
		{url: "https://site.example/media/intro.mp4", tier: TierDynamic, policy: NetworkFirst, fallback: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			require.NoError(t, err)

			got := c.Classify(u)
			assert.Equal(t, tt.tier, got.Tier)
			assert.Equal(t, tt.policy, got.Policy)
			assert.Equal(t, tt.fallback, got.Fallback)
		})
	}
}

func TestCacheNames(t *testing.T) {
	n := NewCacheNames("1.0.0")
	assert.Equal(t, "safety-app-v1.0.0", n.App)
	assert.Equal(t, "safety-static-v1.0.0", n.For(TierStatic))
	assert.Equal(t, "safety-dynamic-v1.0.0", n.For(TierDynamic))
	assert.Equal(t, "safety-api-v1.0.0", n.For(TierAPI))

	assert.True(t, n.Current("safety-api-v1.0.0"))
	assert.False(t, n.Current("safety-app-v1.0.0"))
	assert.False(t, n.Current("safety-static-v0.9.0"))
}
