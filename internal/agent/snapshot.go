package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veloxpay/guestpay/api/schemas"
)

// Snapshot caps. Collections are bounded so the decision payload stays small
// regardless of page complexity.
const (
	maxButtons         = 25
	maxLinks           = 25
	maxInputs          = 25
	maxHeadings        = 10
	maxAlerts          = 10
	maxVisibleTextLen  = 1000
	snapshotSettleTime = 500 * time.Millisecond
)

// Extractor reads the rendered page and produces a bounded PageSnapshot.
type Extractor struct {
	logger *zap.Logger
}

var _ Snapshotter = (*Extractor)(nil)

// NewExtractor creates a page context extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("extractor")}
}

// snapshotScript collects visible interactive elements and page text. Only
// elements with an on-screen box are surfaced; invisible matches are a
// common source of false positives downstream.
const snapshotScript = `
(() => {
    const visible = (el) => {
        const rect = el.getBoundingClientRect();
        if (rect.width <= 0 || rect.height <= 0) return false;
        const style = window.getComputedStyle(el);
        return style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
    };
    const text = (el) => (el.innerText || el.value || el.getAttribute('aria-label') || '').trim().slice(0, 120);

    const buttons = [];
    for (const el of document.querySelectorAll('button, input[type="submit"], input[type="button"], [role="button"]')) {
        if (!visible(el)) continue;
        buttons.push({ text: text(el), id: el.id || '' });
        if (buttons.length >= %d) break;
    }

    const links = [];
    for (const el of document.querySelectorAll('a[href]')) {
        if (!visible(el)) continue;
        links.push({ text: text(el), id: el.id || '', href: el.getAttribute('href') || '' });
        if (links.length >= %d) break;
    }

    const labelFor = (el) => {
        if (el.id) {
            const lab = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
            if (lab) return lab.innerText.trim().slice(0, 120);
        }
        const parent = el.closest('label');
        return parent ? parent.innerText.trim().slice(0, 120) : '';
    };

    const inputs = [];
    for (const el of document.querySelectorAll('input:not([type="hidden"]), select, textarea')) {
        if (!visible(el)) continue;
        inputs.push({
            type: el.type || el.tagName.toLowerCase(),
            name: el.name || '',
            id: el.id || '',
            placeholder: el.placeholder || '',
            label: labelFor(el),
        });
        if (inputs.length >= %d) break;
    }

    const headings = [];
    for (const el of document.querySelectorAll('h1, h2, h3')) {
        if (!visible(el)) continue;
        const t = el.innerText.trim();
        if (t) headings.push(t.slice(0, 120));
        if (headings.length >= %d) break;
    }

    const alerts = [];
    for (const el of document.querySelectorAll('[role="alert"], .alert, .error, .validation-error')) {
        if (!visible(el)) continue;
        const t = el.innerText.trim();
        if (t) alerts.push(t.slice(0, 200));
        if (alerts.length >= %d) break;
    }

    return {
        url: window.location.href,
        title: document.title,
        buttons: buttons,
        links: links,
        inputs: inputs,
        headings: headings,
        alerts: alerts,
        visible_text: (document.body ? document.body.innerText : '').trim().slice(0, %d),
    };
})()
`

// Snapshot waits for the page to settle, then reads a fresh snapshot. The
// snapshot is rebuilt every iteration; it is never cached because the page
// may have navigated.
func (e *Extractor) Snapshot(ctx context.Context, page PageSession) (schemas.PageSnapshot, error) {
	var snap schemas.PageSnapshot

	// Let layout settle before reading, bounded rather than indefinite.
	if err := page.Settle(ctx, snapshotSettleTime); err != nil {
		return snap, fmt.Errorf("page did not settle before snapshot: %w", err)
	}

	script := fmt.Sprintf(snapshotScript, maxButtons, maxLinks, maxInputs, maxHeadings, maxAlerts, maxVisibleTextLen)
	if err := page.Evaluate(ctx, script, &snap); err != nil {
		return snap, fmt.Errorf("failed to extract page snapshot: %w", err)
	}

	capSnapshot(&snap)

	e.logger.Debug("Page snapshot extracted",
		zap.String("url", snap.URL),
		zap.String("title", snap.Title),
		zap.Int("buttons", len(snap.Buttons)),
		zap.Int("links", len(snap.Links)),
		zap.Int("inputs", len(snap.Inputs)),
	)
	return snap, nil
}

// capSnapshot enforces the collection caps on the Go side as well, in case
// the page mutated results between collection and return.
func capSnapshot(snap *schemas.PageSnapshot) {
	if len(snap.Buttons) > maxButtons {
		snap.Buttons = snap.Buttons[:maxButtons]
	}
	if len(snap.Links) > maxLinks {
		snap.Links = snap.Links[:maxLinks]
	}
	if len(snap.Inputs) > maxInputs {
		snap.Inputs = snap.Inputs[:maxInputs]
	}
	if len(snap.Headings) > maxHeadings {
		snap.Headings = snap.Headings[:maxHeadings]
	}
	if len(snap.Alerts) > maxAlerts {
		snap.Alerts = snap.Alerts[:maxAlerts]
	}
	if len(snap.VisibleText) > maxVisibleTextLen {
		snap.VisibleText = snap.VisibleText[:maxVisibleTextLen]
	}
}
