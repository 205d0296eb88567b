package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"
)

const notionPageSize = 100

// Notion reads pages from Notion databases. Each configured database is one
// document collection; each page is one document.
type Notion struct {
	client *notionapi.Client
	logger *zap.Logger
}

// NewNotion creates a Notion source with the given integration token.
func NewNotion(token string, logger *zap.Logger) (*Notion, error) {
	if token == "" {
		return nil, fmt.Errorf("notion token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notion{
		client: notionapi.NewClient(notionapi.Token(token)),
		logger: logger,
	}, nil
}

// List queries the database and returns page ids with their last-edited
// timestamps as revision markers.
func (n *Notion) List(ctx context.Context, collectionID string, limit int) ([]DocumentRef, error) {
	var refs []DocumentRef
	var cursor notionapi.Cursor

	for {
		pageSize := notionPageSize
		if limit > 0 && limit-len(refs) < pageSize {
			pageSize = limit - len(refs)
		}

		resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(collectionID), &notionapi.DatabaseQueryRequest{
			StartCursor: cursor,
			PageSize:    pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: querying database %s: %v", ErrUnavailable, collectionID, err)
		}

		for _, page := range resp.Results {
			refs = append(refs, DocumentRef{
				ID:       page.ID.String(),
				Revision: revisionMarker(page.LastEditedTime),
			})
		}

		if !resp.HasMore || (limit > 0 && len(refs) >= limit) {
			break
		}
		cursor = resp.NextCursor
	}

	n.logger.Debug("listed notion database",
		zap.String("database_id", collectionID),
		zap.Int("pages", len(refs)),
	)

	return refs, nil
}

// Fetch retrieves a page's properties and block content and flattens them
// into one normalized text document.
func (n *Notion) Fetch(ctx context.Context, id string) (*Document, error) {
	page, err := n.client.Page.Get(ctx, notionapi.PageID(id))
	if err != nil {
		return nil, fmt.Errorf("%w: fetching page %s: %v", ErrUnavailable, id, err)
	}

	blocks, err := n.fetchBlocks(ctx, id)
	if err != nil {
		return nil, err
	}

	title := pageTitle(page.Properties)
	parts := flattenProperties(page.Properties)
	parts = append(parts, blocks...)

	return &Document{
		ID:       page.ID.String(),
		Title:    title,
		Text:     strings.Join(parts, "\n"),
		Revision: revisionMarker(page.LastEditedTime),
		URL:      page.URL,
	}, nil
}

// fetchBlocks lists the page's child blocks and extracts their text.
func (n *Notion) fetchBlocks(ctx context.Context, pageID string) ([]string, error) {
	var parts []string
	var cursor notionapi.Cursor

	for {
		resp, err := n.client.Block.GetChildren(ctx, notionapi.BlockID(pageID), &notionapi.Pagination{
			StartCursor: cursor,
			PageSize:    notionPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: listing blocks of page %s: %v", ErrUnavailable, pageID, err)
		}

		for _, block := range resp.Results {
			if text := blockText(block); text != "" {
				parts = append(parts, text)
			}
		}

		if !resp.HasMore {
			break
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}

	return parts, nil
}

// revisionMarker renders a last-edited timestamp as an opaque marker.
func revisionMarker(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// pageTitle returns the page's title property, if any.
func pageTitle(props notionapi.Properties) string {
	for _, prop := range props {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			return richText(title.Title)
		}
	}
	return ""
}

// flattenProperties renders page properties as "name: value" lines, one per
// non-empty property, in sorted name order so repeated fetches of an
// unchanged page produce identical text. The title renders as "Title: ...".
func flattenProperties(props notionapi.Properties) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		switch p := props[name].(type) {
		case *notionapi.TitleProperty:
			if text := richText(p.Title); text != "" {
				parts = append(parts, "Title: "+text)
			}
		case *notionapi.RichTextProperty:
			if text := richText(p.RichText); text != "" {
				parts = append(parts, name+": "+text)
			}
		case *notionapi.SelectProperty:
			if p.Select.Name != "" {
				parts = append(parts, name+": "+p.Select.Name)
			}
		case *notionapi.MultiSelectProperty:
			names := make([]string, 0, len(p.MultiSelect))
			for _, opt := range p.MultiSelect {
				if opt.Name != "" {
					names = append(names, opt.Name)
				}
			}
			if len(names) > 0 {
				parts = append(parts, name+": "+strings.Join(names, ", "))
			}
		}
	}
	return parts
}

// blockText extracts plain text from the block types that carry prose.
// Unsupported block types (images, embeds, tables) yield empty strings.
func blockText(block notionapi.Block) string {
	switch b := block.(type) {
	case *notionapi.ParagraphBlock:
		return richText(b.Paragraph.RichText)
	case *notionapi.Heading1Block:
		return richText(b.Heading1.RichText)
	case *notionapi.Heading2Block:
		return richText(b.Heading2.RichText)
	case *notionapi.Heading3Block:
		return richText(b.Heading3.RichText)
	case *notionapi.BulletedListItemBlock:
		return richText(b.BulletedListItem.RichText)
	case *notionapi.NumberedListItemBlock:
		return richText(b.NumberedListItem.RichText)
	case *notionapi.ToDoBlock:
		return richText(b.ToDo.RichText)
	case *notionapi.QuoteBlock:
		return richText(b.Quote.RichText)
	case *notionapi.CalloutBlock:
		return richText(b.Callout.RichText)
	case *notionapi.CodeBlock:
		return richText(b.Code.RichText)
	default:
		return ""
	}
}

// richText flattens a rich text array to its plain text.
func richText(rt []notionapi.RichText) string {
	var sb strings.Builder
	for _, t := range rt {
		sb.WriteString(t.PlainText)
	}
	return sb.String()
}
