package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeImageAttachment(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		text        string
		attachments []Attachment
		want        string
	}{
		{
			name: "no attachments keeps text",
			text: "hello",
			want: "hello",
		},
		{
			name:        "mixed case png",
			text:        "look",
			attachments: []Attachment{{ContentType: "image/PNG", ContentURL: "https://cdn.example.com/a.png"}},
			want:        "https://cdn.example.com/a.png",
		},
		{
			name: "first image after non-image wins",
			text: "docs",
			attachments: []Attachment{
				{ContentType: "application/pdf", ContentURL: "https://cdn.example.com/a.pdf"},
				{ContentType: "image/gif", ContentURL: "https://cdn.example.com/b.gif"},
				{ContentType: "image/jpeg", ContentURL: "https://cdn.example.com/c.jpg"},
			},
			want: "https://cdn.example.com/b.gif",
		},
		{
			name:        "non image only",
			text:        "keep me",
			attachments: []Attachment{{ContentType: "application/pdf", ContentURL: "https://cdn.example.com/a.pdf"}},
			want:        "keep me",
		},
		{
			name:        "subtype must match exactly",
			text:        "keep me",
			attachments: []Attachment{{ContentType: "image/svg+xml", ContentURL: "https://cdn.example.com/a.svg"}, {ContentType: "image/pngx", ContentURL: "x"}},
			want:        "keep me",
		},
		{
			name:        "jpg alias",
			attachments: []Attachment{{ContentType: "IMAGE/JPG", ContentURL: "https://cdn.example.com/a.jpg"}},
			want:        "https://cdn.example.com/a.jpg",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := &Activity{Type: TypeMessage, Text: tc.text, Attachments: tc.attachments}
			NormalizeImageAttachment(a)
			assert.Equal(t, tc.want, a.Text)
		})
	}
}

func TestNormalizeImageAttachment_Idempotent(t *testing.T) {
	t.Parallel()

	a := &Activity{
		Type: TypeMessage,
		Text: "caption",
		Attachments: []Attachment{
			{ContentType: "application/pdf", ContentURL: "https://cdn.example.com/a.pdf"},
			{ContentType: "image/png", ContentURL: "https://cdn.example.com/b.png"},
		},
	}
	NormalizeImageAttachment(a)
	once := a.Text
	NormalizeImageAttachment(a)
	assert.Equal(t, once, a.Text)
	assert.Equal(t, "https://cdn.example.com/b.png", a.Text)
}

func TestNormalizeImageAttachment_Nil(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() { NormalizeImageAttachment(nil) })
}
