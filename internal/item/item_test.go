package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryRoundTrip(t *testing.T) {
	cats := []Category{Of(KindComponent), Of(KindFuel), Of(KindResource)}
	for _, r := range Resources {
		cats = append(cats, ResourceCategory(r))
	}
	for _, c := range cats {
		got, ok := ParseCategory(c.String())
		assert.True(t, ok, c.String())
		assert.Equal(t, c, got)
	}
}

func TestParseCategoryRejects(t *testing.T) {
	for _, s := range []string{"", "Widget", "Component/Mineral", "Resource/Plasma", "resource"} {
		_, ok := ParseCategory(s)
		assert.False(t, ok, s)
	}
}

func TestIncludes(t *testing.T) {
	minerals := ResourceCategory(ResourceMineral)
	anyResource := Of(KindResource)

	assert.True(t, anyResource.Includes(minerals))
	assert.True(t, anyResource.Includes(ResourceCategory(ResourceGas)))
	assert.True(t, minerals.Includes(minerals))
	assert.False(t, minerals.Includes(ResourceCategory(ResourceGas)))
	assert.False(t, minerals.Includes(anyResource))
	assert.False(t, anyResource.Includes(Of(KindComponent)))
}
