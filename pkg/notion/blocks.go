package notion

import (
	"github.com/harrisonrobin/todoist-notion-sync/pkg/util"
	"github.com/jomei/notionapi"
)

// Heading3 builds a level three heading block.
func Heading3(text string) *notionapi.Heading3Block {
	return &notionapi.Heading3Block{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectType("block"),
			Type:   notionapi.BlockType("heading_3"),
		},
		Heading3: notionapi.Heading{RichText: RichText([]util.Span{{Text: text}})},
	}
}

// Paragraph builds a paragraph block packing all spans.
func Paragraph(spans []util.Span) *notionapi.ParagraphBlock {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectType("block"),
			Type:   notionapi.BlockType("paragraph"),
		},
		Paragraph: notionapi.Paragraph{RichText: RichText(spans)},
	}
}

// Section is a heading followed by a paragraph.
func Section(heading string, spans []util.Span) []notionapi.Block {
	return []notionapi.Block{Heading3(heading), Paragraph(spans)}
}
