package source

import (
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rt(text string) []notionapi.RichText {
	return []notionapi.RichText{{PlainText: text}}
}

func TestNewNotion(t *testing.T) {
	_, err := NewNotion("", zap.NewNop())
	assert.Error(t, err)

	n, err := NewNotion("secret_token", zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, n)
}

func TestRevisionMarker(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2025-03-14T08:26:53Z", revisionMarker(ts))

	// Equal instants yield equal markers regardless of zone.
	assert.Equal(t, revisionMarker(ts), revisionMarker(ts.UTC()))
}

func TestPageTitle(t *testing.T) {
	props := notionapi.Properties{
		"Name": &notionapi.TitleProperty{Title: rt("Weekly Notes")},
		"Tags": &notionapi.MultiSelectProperty{},
	}
	assert.Equal(t, "Weekly Notes", pageTitle(props))

	assert.Equal(t, "", pageTitle(notionapi.Properties{}))
}

func TestFlattenProperties(t *testing.T) {
	props := notionapi.Properties{
		"Name":    &notionapi.TitleProperty{Title: rt("Gardening")},
		"Summary": &notionapi.RichTextProperty{RichText: rt("Planting schedule")},
		"Status":  &notionapi.SelectProperty{Select: notionapi.Option{Name: "Active"}},
		"Tags": &notionapi.MultiSelectProperty{MultiSelect: []notionapi.Option{
			{Name: "outdoor"}, {Name: "spring"},
		}},
		"Empty": &notionapi.RichTextProperty{},
	}

	parts := flattenProperties(props)
	assert.Equal(t, []string{
		"Title: Gardening",
		"Status: Active",
		"Summary: Planting schedule",
		"Tags: outdoor, spring",
	}, parts)
}

func TestBlockText(t *testing.T) {
	tests := []struct {
		name  string
		block notionapi.Block
		want  string
	}{
		{
			name:  "paragraph",
			block: &notionapi.ParagraphBlock{Paragraph: notionapi.Paragraph{RichText: rt("plain text")}},
			want:  "plain text",
		},
		{
			name:  "heading",
			block: &notionapi.Heading2Block{Heading2: notionapi.Heading{RichText: rt("Section")}},
			want:  "Section",
		},
		{
			name:  "bulleted item",
			block: &notionapi.BulletedListItemBlock{BulletedListItem: notionapi.ListItem{RichText: rt("item")}},
			want:  "item",
		},
		{
			name:  "todo",
			block: &notionapi.ToDoBlock{ToDo: notionapi.ToDo{RichText: rt("water plants")}},
			want:  "water plants",
		},
		{
			name:  "quote",
			block: &notionapi.QuoteBlock{Quote: notionapi.Quote{RichText: rt("cited")}},
			want:  "cited",
		},
		{
			name:  "code",
			block: &notionapi.CodeBlock{Code: notionapi.Code{RichText: rt("fmt.Println()")}},
			want:  "fmt.Println()",
		},
		{
			name:  "unsupported type",
			block: &notionapi.ImageBlock{},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, blockText(tt.block))
		})
	}
}

func TestRichText_Concatenates(t *testing.T) {
	parts := []notionapi.RichText{
		{PlainText: "Hello, "},
		{PlainText: "world"},
	}
	assert.Equal(t, "Hello, world", richText(parts))
}
