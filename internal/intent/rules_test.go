package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicRuleTable(t *testing.T) {
	cases := []struct {
		instruction string
		hints       Hints
		want        Plan
	}{
		{"make the caption funnier", Hints{}, Plan{Caption: true}},
		{"write a shorter description", Hints{}, Plan{Caption: true}},
		{"generate 3 hashtags", Hints{}, Plan{Hashtags: true}},
		{"swap #sunset for something trendier", Hints{}, Plan{Hashtags: true}},
		{"brighten the photo", Hints{}, Plan{Image: true}},
		{"remove the background from this picture", Hints{}, Plan{Image: true}},
		{"new caption and new hashtags", Hints{}, Plan{Caption: true, Hashtags: true}},
		{"post this for my followers", Hints{}, Plan{Caption: true, Hashtags: true}},
		{"brighten it", Hints{}, Plan{Caption: true, Hashtags: true}},
		{"punchier caption", Hints{EditImage: true}, Plan{Caption: true, Image: true}},
		{"do your thing", Hints{EditImage: true}, Plan{Image: true}},
		{"generate a post for this photo", Hints{}, Plan{Caption: true, Hashtags: true}},
		{"generate something catchy for my picture", Hints{}, Plan{Caption: true, Hashtags: true}},
		{"regenerate the image", Hints{}, Plan{Image: true}},
		{"generate a new photo", Hints{}, Plan{Image: true}},
	}
	for _, tc := range cases {
		got := Heuristic(tc.instruction, tc.hints)
		assert.Equalf(t, tc.want.Caption, got.Caption, "%q caption", tc.instruction)
		assert.Equalf(t, tc.want.Hashtags, got.Hashtags, "%q hashtags", tc.instruction)
		assert.Equalf(t, tc.want.Image, got.Image, "%q image", tc.instruction)
		assert.Equal(t, SourceHeuristic, got.Source)
	}
}

func TestHeuristicIsDeterministic(t *testing.T) {
	for _, s := range []string{"make the caption funnier", "tags please", "edit the photo", "whatever"} {
		first := Heuristic(s, Hints{})
		for i := 0; i < 20; i++ {
			assert.Equal(t, first, Heuristic(s, Hints{}))
		}
	}
}

func TestTextOnly(t *testing.T) {
	assert.True(t, TextOnly("make the caption funnier"))
	assert.True(t, TextOnly("only five hashtags"))
	assert.False(t, TextOnly("caption about this photo"))
	assert.False(t, TextOnly("crop and write a caption"))
	assert.False(t, TextOnly("do something nice"))
}

func TestPlanCapabilitiesOrder(t *testing.T) {
	p := Plan{Caption: true, Hashtags: true, Image: true}
	got := p.Capabilities()
	assert.Equal(t, "caption", string(got[0]))
	assert.Equal(t, "hashtags", string(got[1]))
	assert.Equal(t, "image", string(got[2]))
}
