package thumbnail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParts_Order(t *testing.T) {
	// Deliberately shuffled input.
	attachments := []Attachment{
		{Role: RoleMajor, Image: png("major"), Description: "host"},
		{Role: RoleIcon, Index: 1, Image: png("i2"), Description: "badge"},
		{Role: RoleBackground, Image: png("bg"), Description: ""},
		{Role: RoleIcon, Index: 0, Image: png("i1"), Description: "logo"},
	}

	parts := BuildParts("INSTRUCTION", attachments)
	require.Len(t, parts, 9)

	assert.Equal(t, "INSTRUCTION", parts[0].Text)
	wantImages := []string{"bg.png", "i1.png", "i2.png", "major.png"}
	wantLabels := []string{
		"Background image: " + DefaultBackgroundDescription,
		"Icon image 1: logo",
		"Icon image 2: badge",
		"Major image: host",
	}
	for i := range wantImages {
		img := parts[1+2*i]
		label := parts[2+2*i]
		require.NotNil(t, img.Image, "part %d should be an image", 1+2*i)
		assert.Equal(t, wantImages[i], img.Image.Filename)
		assert.Nil(t, label.Image)
		assert.Equal(t, wantLabels[i], label.Text)
	}
}

func TestAttachmentsFor(t *testing.T) {
	bg, major := png("bg"), png("major")
	req := &GenerationRequest{Background: &bg, Major: &major, Icons: []Image{png("i1")}}
	got := AttachmentsFor(req, EnhancedDescriptions{Background: "b", Major: "m", Icons: []string{"i"}})

	require.Len(t, got, 3)
	assert.Equal(t, RoleBackground, got[0].Role)
	assert.Equal(t, RoleIcon, got[1].Role)
	assert.Equal(t, "i", got[1].Description)
	assert.Equal(t, RoleMajor, got[2].Role)
}

func TestSynthesize_TextOnlyIsNoResult(t *testing.T) {
	model := &fakeImages{result: &SynthesisResult{Text: "I cannot draw that"}}
	got, err := NewSynthesizer(model).Synthesize(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	model = &fakeImages{}
	got, err = NewSynthesizer(model).Synthesize(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSynthesize_Success(t *testing.T) {
	model := &fakeImages{result: &SynthesisResult{Data: []byte("img")}}
	got, err := NewSynthesizer(model).Synthesize(context.Background(), "x", []Attachment{{Role: RoleMajor, Image: png("m")}})
	require.NoError(t, err)
	assert.Equal(t, "image/png", got.MIMEType, "missing mime defaults to png")
	assert.Len(t, model.parts, 3)
}

func TestSynthesize_CallFailure(t *testing.T) {
	model := &fakeImages{err: errUpstream}
	_, err := NewSynthesizer(model).Synthesize(context.Background(), "x", nil)
	var se *SynthesisError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, errUpstream)
}

func TestAttachmentLabel_Source(t *testing.T) {
	assert.Equal(t, "Previous thumbnail: Previously generated thumbnail", Attachment{Role: RoleSource}.Label())
	assert.Equal(t, "Previous thumbnail: edit me", Attachment{Role: RoleSource, Description: " edit me "}.Label())
}
