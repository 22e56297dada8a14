package render

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iwasp/internal/design"
	"iwasp/internal/layout"
	"iwasp/internal/palette"
	"iwasp/internal/units"
)

// monoMeasurer sets every rune 0.6 em wide, bold 0.65 em.
type monoMeasurer struct{}

func (monoMeasurer) AdvancePerMM(text string, w layout.Weight) float64 {
	em := 0.6
	if w == layout.Bold {
		em = 0.65
	}
	return em * float64(utf8.RuneCountInString(text))
}

// wideMeasurer sets every rune 1 em wide.
type wideMeasurer struct{}

func (wideMeasurer) AdvancePerMM(text string, _ layout.Weight) float64 {
	return float64(utf8.RuneCountInString(text))
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(428, monoMeasurer{})
	require.NoError(t, err)
	return r
}

func strp(s string) *string { return &s }

func lockedDesign(t *testing.T, templateID, colorID string, c design.Changes) *design.Design {
	t.Helper()
	d, err := design.New("sess-1", "CMD-42", templateID, colorID)
	require.NoError(t, err)
	require.NoError(t, d.Apply(c))
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, d.Validate(now))
	require.NoError(t, d.Lock(now))
	return d
}

func kinds(tree *Tree) map[Kind]int {
	out := map[Kind]int{}
	for _, n := range tree.Nodes {
		out[n.Kind]++
	}
	return out
}

func TestRenderBlackOnyxNameOnly(t *testing.T) {
	r := newRenderer(t)
	d := lockedDesign(t, "iwasp-black", "onyx", design.Changes{PrintedName: strp("Ada Lovelace")})

	tree, err := r.Render(d, units.ModePrint, Options{})
	require.NoError(t, err)

	assert.Equal(t, map[Kind]int{KindText: 1, KindWatermark: 1}, kinds(tree))
	name, ok := tree.Find(layout.SlotName)
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", name.Text)
	assert.Equal(t, "#ffffff", name.ColorHex)
	assert.Equal(t, "#0a0a0a", tree.BackgroundHex)
	_, ok = tree.Find(layout.SlotTitle)
	assert.False(t, ok)
	_, ok = tree.Find(layout.SlotCompany)
	assert.False(t, ok)

	d.Logo = &design.LogoAsset{ObjectKey: "card-assets/sess-1/logo.png", PixelWidth: 600, PixelHeight: 600}
	tree, err = r.Render(d, units.ModePrint, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[Kind]int{KindText: 1, KindWatermark: 1, KindLogo: 1}, kinds(tree))
}

func TestRenderPrintRequiresLock(t *testing.T) {
	r := newRenderer(t)
	d, err := design.New("sess-1", "CMD-42", "iwasp-black", "")
	require.NoError(t, err)
	require.NoError(t, d.Apply(design.Changes{PrintedName: strp("Ada")}))

	_, err = r.Render(d, units.ModePrint, Options{})
	assert.ErrorIs(t, err, design.ErrNotLocked)

	_, err = r.Render(d, units.ModePreview, Options{ShowGuides: true})
	assert.NoError(t, err)
}

func TestRenderFailsClosedOnUnknownColor(t *testing.T) {
	r := newRenderer(t)
	d := &design.Design{TemplateID: "iwasp-black", ColorID: "gold", PrintedName: "Ada"}

	_, err := r.Render(d, units.ModePreview, Options{})
	assert.ErrorIs(t, err, palette.ErrUnknownColor)

	d = &design.Design{TemplateID: "nope", ColorID: "onyx", PrintedName: "Ada"}
	_, err = r.Render(d, units.ModePreview, Options{})
	assert.ErrorIs(t, err, layout.ErrUnknownTemplate)
}

func TestGuidesAndPlaceholdersArePreviewOnly(t *testing.T) {
	r := newRenderer(t)
	d := lockedDesign(t, "iwasp-pure", "", design.Changes{PrintedName: strp("Ada")})
	opts := Options{ShowGuides: true, ShowPlaceholders: true}

	preview, err := r.Render(d, units.ModePreview, opts)
	require.NoError(t, err)
	k := kinds(preview)
	assert.Equal(t, 2, k[KindGuide])
	assert.Equal(t, 3, k[KindPlaceholder], "logo, title, company")

	printTree, err := r.Render(d, units.ModePrint, opts)
	require.NoError(t, err)
	for _, n := range printTree.Nodes {
		assert.True(t, n.Printing, "print tree has non-printing %s node", n.Kind)
		assert.NotEqual(t, KindGuide, n.Kind)
		assert.NotEqual(t, KindPlaceholder, n.Kind)
	}
}

func TestPreviewAndPrintDifferOnlyByScale(t *testing.T) {
	r := newRenderer(t)
	for _, tpl := range layout.All() {
		d := lockedDesign(t, tpl.ID, "", design.Changes{
			PrintedName:    strp("Grace Hopper"),
			PrintedTitle:   strp("Rear Admiral"),
			PrintedCompany: strp("US Navy"),
		})
		d.Logo = &design.LogoAsset{ObjectKey: "k", PixelWidth: 1200, PixelHeight: 500}

		preview, err := r.Render(d, units.ModePreview, Options{})
		require.NoError(t, err)
		printTree, err := r.Render(d, units.ModePrint, Options{})
		require.NoError(t, err)

		ratio := printTree.PxPerMM / preview.PxPerMM
		assert.InDelta(t, ratio, printTree.WidthPx/preview.WidthPx, 1e-12)

		pg, vg := printTree.Geometry(), preview.Geometry()
		require.Equal(t, len(pg), len(vg), tpl.ID)
		for slot, pr := range pg {
			vr, ok := vg[slot]
			require.True(t, ok, "%s: %s missing in preview", tpl.ID, slot)
			assert.InDelta(t, vr.X*ratio, pr.X, 1e-6, "%s %s x", tpl.ID, slot)
			assert.InDelta(t, vr.Y*ratio, pr.Y, 1e-6, "%s %s y", tpl.ID, slot)
			assert.InDelta(t, vr.W*ratio, pr.W, 1e-6, "%s %s w", tpl.ID, slot)
			assert.InDelta(t, vr.H*ratio, pr.H, 1e-6, "%s %s h", tpl.ID, slot)
		}
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	r := newRenderer(t)
	d := lockedDesign(t, "iwasp-corporate", "", design.Changes{PrintedName: strp("Ada"), PrintedTitle: strp("CTO")})

	a, err := r.Render(d, units.ModePrint, Options{})
	require.NoError(t, err)
	b, err := r.Render(d, units.ModePrint, Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLogoContainFit(t *testing.T) {
	r := newRenderer(t)
	d := lockedDesign(t, "iwasp-black", "", design.Changes{PrintedName: strp("Ada")})
	d.Logo = &design.LogoAsset{ObjectKey: "k", PixelWidth: 800, PixelHeight: 400}

	tree, err := r.Render(d, units.ModePrint, Options{})
	require.NoError(t, err)
	logo, ok := tree.Find(layout.SlotLogo)
	require.True(t, ok)

	px := tree.PxPerMM
	assert.InDelta(t, 25.4*px, logo.Rect.W, 1e-6)
	assert.InDelta(t, 12.7*px, logo.Rect.H, 1e-6)
	assert.InDelta(t, (85.6-25.4)/2*px, logo.Rect.X, 1e-6)
	assert.InDelta(t, (6+6.35)*px, logo.Rect.Y, 1e-6)
}

func TestTextFitsSlot(t *testing.T) {
	r := newRenderer(t)
	long := strings.Repeat("W", design.MaxNameRunes)
	for _, tpl := range layout.All() {
		d := lockedDesign(t, tpl.ID, "", design.Changes{
			PrintedName:    strp(long),
			PrintedTitle:   strp(strings.Repeat("m", design.MaxTitleRunes)),
			PrintedCompany: strp(strings.Repeat("x", design.MaxCompanyRunes)),
		})
		tree, err := r.Render(d, units.ModePrint, Options{})
		require.NoError(t, err)

		spec, err := tpl.Spec()
		require.NoError(t, err)
		safe := spec.SafeArea()
		nfc := spec.NFCZone
		for _, n := range tree.Nodes {
			x0, x1 := n.Rect.X/tree.PxPerMM, (n.Rect.X+n.Rect.W)/tree.PxPerMM
			y0, y1 := n.Rect.Y/tree.PxPerMM, (n.Rect.Y+n.Rect.H)/tree.PxPerMM
			box := units.RectMM{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
			if n.Slot.IsText() {
				assert.True(t, safe.Contains(box), "%s %s outside safe area: %+v", tpl.ID, n.Slot, box)
				assert.LessOrEqual(t, box.W, tpl.Positions[n.Slot].MaxWidthMM+1e-9)
			}
			assert.False(t, box.Intersects(nfc), "%s %s prints over nfc zone", tpl.ID, n.Slot)
		}
	}
}

func TestTextShrinksBeforeTruncating(t *testing.T) {
	r := newRenderer(t)
	// 60 mm slot, 4.2 mm bold: 0.65*4.2 = 2.73 mm per rune plus 0.15 spacing.
	d := lockedDesign(t, "iwasp-black", "", design.Changes{PrintedName: strp(strings.Repeat("A", 24))})
	tree, err := r.Render(d, units.ModePrint, Options{})
	require.NoError(t, err)
	name, _ := tree.Find(layout.SlotName)
	assert.Equal(t, strings.Repeat("A", 24), name.Text)
	assert.Less(t, name.FontSizePx, 4.2*tree.PxPerMM)

	wide, err := NewRenderer(428, wideMeasurer{})
	require.NoError(t, err)
	d = lockedDesign(t, "iwasp-black", "", design.Changes{PrintedName: strp(strings.Repeat("W", 30))})
	tree, err = wide.Render(d, units.ModePrint, Options{})
	require.NoError(t, err)
	name, _ = tree.Find(layout.SlotName)
	assert.True(t, strings.HasSuffix(name.Text, "…"), name.Text)
	assert.InDelta(t, 4.2*0.6*tree.PxPerMM, name.FontSizePx, 1e-6)
	assert.LessOrEqual(t, name.Rect.W, 60*tree.PxPerMM+1e-6)
}

func TestCenteringUsesContentWidth(t *testing.T) {
	r := newRenderer(t)
	d := lockedDesign(t, "iwasp-black", "", design.Changes{PrintedName: strp("Ada")})
	tree, err := r.Render(d, units.ModePreview, Options{})
	require.NoError(t, err)
	name, _ := tree.Find(layout.SlotName)
	assert.InDelta(t, (tree.WidthPx-name.Rect.W)/2, name.Rect.X, 1e-9)
}

func TestNodesAreAnchoredAtSlotPosition(t *testing.T) {
	r := newRenderer(t)
	for _, tpl := range layout.All() {
		d := lockedDesign(t, tpl.ID, "", design.Changes{PrintedName: strp("Jean Dupont"), PrintedTitle: strp("CEO")})
		d.Logo = &design.LogoAsset{ObjectKey: "k", PixelWidth: 600, PixelHeight: 300}
		spec, err := tpl.Spec()
		require.NoError(t, err)
		scales, err := r.Scales(spec.ID)
		require.NoError(t, err)

		for _, mode := range []units.Mode{units.ModePreview, units.ModePrint} {
			tree, err := r.Render(d, mode, Options{})
			require.NoError(t, err)
			scale, err := scales.For(mode)
			require.NoError(t, err)
			for _, n := range tree.Nodes {
				if n.Slot == "" {
					continue
				}
				origin, err := layout.SlotPosition(tpl, n.Slot, n.Rect.W/tree.PxPerMM, spec, scale)
				require.NoError(t, err)
				assert.InDelta(t, origin.X, n.Rect.X, 1e-6, "%s %s %s", tpl.ID, mode, n.Slot)
				assert.GreaterOrEqual(t, n.Rect.Y+1e-9, origin.Y, "%s %s %s", tpl.ID, mode, n.Slot)
			}
		}
	}
}
