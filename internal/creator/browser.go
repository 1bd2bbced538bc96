// Package creator drives a headless browser through the retailer's gift
// card purchase flow to produce one ready-to-redeem card per invocation.
package creator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"giftvault/server/internal/model"
	core "giftvault/server/internal/service"
	"giftvault/server/pkg/config"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0 Safari/537.36"

// Purchase flow selectors on the retailer page.
const (
	selAmountInput    = `#gc-order-form-custom-amount`
	selRecipientInput = `#gc-order-form-recipient`
	selBuyButton      = `#gc-buy-box-button`
	selChallengeInput = `#gc-challenge-code`
	selChallengeSend  = `#gc-challenge-submit`
	selConfirmation   = `.gc-order-confirmation`
	selOrderID        = `.gc-order-confirmation .order-id`
	selClaimLink      = `.gc-order-confirmation a.claim-link`
)

// BrowserCreator implements core.CardCreator over a Chrome instance.
// One allocator is shared across creations; each Create gets a fresh tab
// and its own bounded timeout.
type BrowserCreator struct {
	cfg         config.CreatorConfig
	allocCtx    context.Context
	allocCancel context.CancelFunc
	mailbox     *MailboxClient
	log         zerolog.Logger
}

// NewBrowserCreator prepares the Chrome allocator. RemoteURL attaches to an
// already running browser; otherwise one is launched locally.
func NewBrowserCreator(cfg config.CreatorConfig) (*BrowserCreator, error) {
	if cfg.StoreURL == "" {
		return nil, errors.New("creator: store_url is required")
	}
	if cfg.Recipient == "" {
		return nil, errors.New("creator: recipient is required")
	}

	b := &BrowserCreator{
		cfg:     cfg,
		mailbox: NewMailboxClient(cfg.Mailbox),
		log:     core.GetLogger("creator"),
	}

	if cfg.RemoteURL != "" {
		b.allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		return b, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return b, nil
}

// Close releases the browser allocator.
func (b *BrowserCreator) Close() {
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

// Create purchases one gift card for the given amount and returns it. The
// whole attempt is bounded by the configured timeout; exceeding it yields a
// timeout CreationError feeding the caller's retry policy.
func (b *BrowserCreator) Create(ctx context.Context, amount string) (model.Card, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout())
	defer cancel()

	tabCtx, tabCancel := chromedp.NewContext(b.allocCtx)
	defer tabCancel()

	// Tie tab lifetime to the attempt deadline.
	go func() {
		<-ctx.Done()
		tabCancel()
	}()

	start := time.Now()
	b.log.Info().Str("amount", amount).Msg("Purchase started")

	if err := chromedp.Run(tabCtx,
		emulation.SetUserAgentOverride(userAgent),
		chromedp.Navigate(b.cfg.StoreURL),
		chromedp.WaitVisible(selAmountInput, chromedp.ByQuery),
		chromedp.SendKeys(selAmountInput, amount, chromedp.ByQuery),
		chromedp.SendKeys(selRecipientInput, b.cfg.Recipient, chromedp.ByQuery),
		chromedp.Click(selBuyButton, chromedp.ByQuery),
	); err != nil {
		return model.Card{}, b.classify("submit_order", ctx, err)
	}

	// The retailer mails a verification code to the recipient mailbox.
	if err := b.solveChallenge(ctx, tabCtx); err != nil {
		return model.Card{}, err
	}

	var orderID, claimURL string
	var hasHref bool
	if err := chromedp.Run(tabCtx,
		chromedp.WaitVisible(selConfirmation, chromedp.ByQuery),
		chromedp.Text(selOrderID, &orderID, chromedp.ByQuery),
		chromedp.AttributeValue(selClaimLink, "href", &claimURL, &hasHref, chromedp.ByQuery),
	); err != nil {
		return model.Card{}, b.classify("read_confirmation", ctx, err)
	}

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return model.Card{}, core.NewCreationError(core.CreationNoCardID, "read_confirmation",
			errors.New("confirmation page carries no order id"))
	}
	if !hasHref || claimURL == "" {
		return model.Card{}, core.NewCreationError(core.CreationNoCardID, "read_confirmation",
			errors.New("confirmation page carries no claim link"))
	}

	card := model.Card{
		ID:        orderID,
		ClaimURL:  claimURL,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	b.log.Info().Str("card_id", card.ID).Str("amount", amount).
		Dur("took", time.Since(start)).Msg("Purchase finished")
	return card, nil
}

// solveChallenge waits for the challenge field, fetches the mailed code and
// submits it. Pages that skip the challenge are fine: the field simply never
// appears before the confirmation, so a short probe decides the path.
func (b *BrowserCreator) solveChallenge(ctx, tabCtx context.Context) error {
	probeCtx, probeCancel := context.WithTimeout(tabCtx, 5*time.Second)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.WaitVisible(selChallengeInput, chromedp.ByQuery)); err != nil {
		// No challenge presented.
		return nil
	}

	code, err := b.mailbox.WaitForCode(ctx)
	if err != nil {
		return core.NewCreationError(core.CreationFailed, "fetch_mail_code", err)
	}

	if err := chromedp.Run(tabCtx,
		chromedp.SendKeys(selChallengeInput, code, chromedp.ByQuery),
		chromedp.Click(selChallengeSend, chromedp.ByQuery),
	); err != nil {
		return b.classify("submit_challenge", ctx, err)
	}
	return nil
}

// classify maps a chromedp failure onto the creation error taxonomy.
func (b *BrowserCreator) classify(step string, ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return core.NewCreationError(core.CreationTimeout, step, err)
	case errors.Is(err, context.DeadlineExceeded):
		return core.NewCreationError(core.CreationTimeout, step, err)
	case strings.Contains(err.Error(), "could not find node"),
		strings.Contains(err.Error(), "waiting for selector"):
		return core.NewCreationError(core.CreationElementNotFound, step, err)
	default:
		return core.NewCreationError(core.CreationFailed, step, err)
	}
}
