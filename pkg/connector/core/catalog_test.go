package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCatalog() *Catalog {
	return &Catalog{Resources: []*ResourceDef{
		{
			Name:             "campaigns",
			PrimaryKey:       []string{"id"},
			WriteDisposition: WriteMerge,
			IncrementalField: "updated",
		},
		{
			Name:             "campaign_actions",
			PrimaryKey:       []string{"id"},
			WriteDisposition: WriteMerge,
			Parent:           "campaigns",
			JoinField:        "campaign_id",
		},
		{
			Name:             "snapshots",
			WriteDisposition: WriteReplace,
		},
	}}
}

func TestCatalogValidate(t *testing.T) {
	require.NoError(t, validCatalog().Validate())
}

func TestCatalogValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Catalog)
	}{
		{
			name:   "missing name",
			mutate: func(c *Catalog) { c.Resources[0].Name = "" },
		},
		{
			name:   "duplicate name",
			mutate: func(c *Catalog) { c.Resources[1].Name = "campaigns" },
		},
		{
			name:   "invalid disposition",
			mutate: func(c *Catalog) { c.Resources[0].WriteDisposition = "append" },
		},
		{
			name:   "merge without primary key",
			mutate: func(c *Catalog) { c.Resources[0].PrimaryKey = nil },
		},
		{
			name:   "unknown parent",
			mutate: func(c *Catalog) { c.Resources[1].Parent = "nope" },
		},
		{
			name: "parent declared after child",
			mutate: func(c *Catalog) {
				c.Resources[0], c.Resources[1] = c.Resources[1], c.Resources[0]
			},
		},
		{
			name:   "parent without join field",
			mutate: func(c *Catalog) { c.Resources[1].JoinField = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCatalog()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestCatalogLookup(t *testing.T) {
	c := validCatalog()

	def, ok := c.Get("campaign_actions")
	require.True(t, ok)
	assert.Equal(t, "campaigns", def.Parent)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"campaigns", "campaign_actions", "snapshots"}, c.Names())
}

func TestResourceDefIncremental(t *testing.T) {
	assert.True(t, (&ResourceDef{IncrementalField: "updated"}).Incremental())
	assert.False(t, (&ResourceDef{}).Incremental())
}

func TestStateAdvance(t *testing.T) {
	s := NewState()

	t1 := time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2023, 1, 20, 0, 0, 0, 0, time.UTC)

	s.Advance("campaigns", t2)
	s.Advance("campaigns", t1) // older, must not regress

	cursor, ok := s.Cursor("campaigns")
	require.True(t, ok)
	assert.Equal(t, t2, cursor)

	_, ok = s.Cursor("other")
	assert.False(t, ok)
}
