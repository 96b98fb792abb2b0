package transfer

import (
	"context"
	"time"

	"github.com/FocuswithJustin/annotransfer/core/align"
	"github.com/FocuswithJustin/annotransfer/core/migrate"
	"github.com/FocuswithJustin/annotransfer/internal/logging"
)

// RootMapping maps the root layer, migrated onto the display base, to the
// display layer: root index -> display indices.
func (t *Transfer) RootMapping(ctx context.Context, root, rootDisplay migrate.Rendering) (align.Mapping, error) {
	ctx, _ = t.begin(ctx)
	if err := requireKind(root, "root", migrate.KindRoot); err != nil {
		return nil, err
	}
	if err := requireKind(rootDisplay, "root_display", migrate.KindRootDisplay); err != nil {
		return nil, err
	}
	m, _, err := t.mapOnto(ctx, root, rootDisplay)
	return m, err
}

// TranslationMapping maps the translation display layer, migrated onto the
// translation base, to the translation layer: display index -> translation
// indices.
func (t *Transfer) TranslationMapping(ctx context.Context, translation, translationDisplay migrate.Rendering) (align.Mapping, error) {
	ctx, _ = t.begin(ctx)
	if err := requireKind(translation, "translation", migrate.KindTranslation); err != nil {
		return nil, err
	}
	if err := requireKind(translationDisplay, "translation_display", migrate.KindTranslationDisplay); err != nil {
		return nil, err
	}
	m, _, err := t.mapOnto(ctx, translationDisplay, translation)
	return m, err
}

// commentaryChain resolves commentary -> root through the commentary's index
// ranges and root -> display through the root mapping.
func (t *Transfer) commentaryChain(ctx context.Context, root, rootDisplay, commentary migrate.Rendering) (align.Layer, []align.Hop, error) {
	if err := requireKind(commentary, "commentary", migrate.KindCommentary); err != nil {
		return align.Layer{}, nil, err
	}
	rootMap, display, err := t.mapOnto(ctx, root, rootDisplay)
	if err != nil {
		return align.Layer{}, nil, err
	}
	rootLayer, err := t.load(ctx, root)
	if err != nil {
		return align.Layer{}, nil, err
	}
	com, err := t.load(ctx, commentary)
	if err != nil {
		return align.Layer{}, nil, err
	}
	hops := []align.Hop{
		{Mapping: align.FromIndexRanges(com, rootLayer), Layer: rootLayer},
		{Mapping: rootMap, Layer: display},
	}
	return com, hops, nil
}

// SerializeCommentary renders every commentary segment anchored to the
// display segment reached through its first root reference. Segments whose
// chain breaks at either hop are emitted raw.
func (t *Transfer) SerializeCommentary(ctx context.Context, root, rootDisplay, commentary migrate.Rendering) ([]string, error) {
	ctx, _ = t.begin(ctx)
	start := time.Now()
	com, hops, err := t.commentaryChain(ctx, root, rootDisplay, commentary)
	if err != nil {
		return nil, err
	}
	out := t.serializer().Chain(com, hops...)
	logging.AlignmentStep(ctx, "serialize", commentary.ID, rootDisplay.ID, len(out), time.Since(start))
	return out, nil
}

// AlignedDisplayCommentary lists, per display segment, the commentary texts
// whose first root reference resolves to it.
func (t *Transfer) AlignedDisplayCommentary(ctx context.Context, root, rootDisplay, commentary migrate.Rendering) ([][]string, error) {
	ctx, _ = t.begin(ctx)
	start := time.Now()
	com, hops, err := t.commentaryChain(ctx, root, rootDisplay, commentary)
	if err != nil {
		return nil, err
	}
	composed := align.Compose(hops[0].Mapping, hops[1].Mapping, align.ComposeFirst)
	out := align.AlignedDisplay(com, composed, hops[1].Layer)
	logging.AlignmentStep(ctx, "aligned_display", commentary.ID, rootDisplay.ID, len(out), time.Since(start))
	return out, nil
}

// translationInputs loads a translation layer, numbered by root index, and
// the root -> display mapping.
func (t *Transfer) translationInputs(ctx context.Context, root, rootDisplay, translation migrate.Rendering) (align.Layer, align.Mapping, align.Layer, error) {
	if err := requireKind(translation, "translation", migrate.KindTranslation); err != nil {
		return align.Layer{}, nil, align.Layer{}, err
	}
	rootMap, display, err := t.mapOnto(ctx, root, rootDisplay)
	if err != nil {
		return align.Layer{}, nil, align.Layer{}, err
	}
	tr, err := t.load(ctx, translation)
	if err != nil {
		return align.Layer{}, nil, align.Layer{}, err
	}
	return tr, rootMap, display, nil
}

// SerializeTranslation renders every translation segment anchored to the
// first display segment its root index maps to.
func (t *Transfer) SerializeTranslation(ctx context.Context, root, rootDisplay, translation migrate.Rendering) ([]string, error) {
	ctx, _ = t.begin(ctx)
	start := time.Now()
	tr, rootMap, display, err := t.translationInputs(ctx, root, rootDisplay, translation)
	if err != nil {
		return nil, err
	}
	out := t.serializer().Chain(tr, align.Hop{Mapping: rootMap, Layer: display})
	logging.AlignmentStep(ctx, "serialize", translation.ID, rootDisplay.ID, len(out), time.Since(start))
	return out, nil
}

// AlignedDisplayTranslation lists, per display segment, the translation
// texts whose root index first maps to it.
func (t *Transfer) AlignedDisplayTranslation(ctx context.Context, root, rootDisplay, translation migrate.Rendering) ([][]string, error) {
	ctx, _ = t.begin(ctx)
	start := time.Now()
	tr, rootMap, display, err := t.translationInputs(ctx, root, rootDisplay, translation)
	if err != nil {
		return nil, err
	}
	out := align.AlignedDisplay(tr, align.Firsts(rootMap), display)
	logging.AlignmentStep(ctx, "aligned_display", translation.ID, rootDisplay.ID, len(out), time.Since(start))
	return out, nil
}
