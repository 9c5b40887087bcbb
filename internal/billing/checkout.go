package billing

import (
	"context"
	"fmt"
	"net/url"

	errs "github.com/bookden/bookden/internal/errors"
	"github.com/bookden/bookden/internal/registry"
	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
)

// CheckoutService starts hosted checkout and billing portal sessions at the
// payment provider. Subscription state is never written here; it arrives back
// through the webhook reconciler.
type CheckoutService struct {
	priceID   string
	baseURL   string
	trialDays int64

	// Session constructors, injectable so tests never reach the network.
	newCheckoutSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newPortalSession   func(*stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// NewCheckoutService configures the provider client. baseURL is the public
// origin the provider redirects back to after checkout.
func NewCheckoutService(apiKey, priceID, baseURL string, trialDays int64) *CheckoutService {
	stripe.Key = apiKey
	return &CheckoutService{
		priceID:            priceID,
		baseURL:            baseURL,
		trialDays:          trialDays,
		newCheckoutSession: checkoutsession.New,
		newPortalSession:   portalsession.New,
	}
}

// StartCheckout creates a hosted checkout session for the tenant and returns
// the URL to send the browser to. The tenant ID rides along as metadata on
// both the session and the subscription it creates, which is how webhook
// events find their way back to the tenant.
func (c *CheckoutService) StartCheckout(ctx context.Context, tenant *registry.Tenant) (string, error) {
	if tenant == nil {
		return "", errs.NewAccessError(errs.ErrorTypeValidation, "start_checkout", fmt.Errorf("tenant is required"))
	}

	subMeta := map[string]string{"tenant_id": tenant.ID}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(c.priceID), Quantity: stripe.Int64(1)},
		},
		ClientReferenceID: stripe.String(tenant.ID),
		SuccessURL:        stripe.String(c.baseURL + "/dashboard/billing?checkout=success"),
		CancelURL:         stripe.String(c.baseURL + "/dashboard/billing?checkout=canceled"),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: subMeta,
		},
	}
	params.Context = ctx
	params.Metadata = map[string]string{
		"tenant_id":   tenant.ID,
		"tenant_slug": tenant.Slug,
	}
	if tenant.Email != "" {
		params.CustomerEmail = stripe.String(tenant.Email)
	}
	if c.trialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(c.trialDays)
	}

	session, err := c.newCheckoutSession(params)
	if err != nil {
		return "", errs.NewAccessError(errs.ErrorTypeUpstream, "start_checkout", err).WithTenant(tenant.ID)
	}
	return session.URL, nil
}

// OpenPortal creates a billing portal session so a tenant admin can manage
// payment details and cancellation at the provider. Requires that checkout
// already established a provider customer.
func (c *CheckoutService) OpenPortal(ctx context.Context, tenant *registry.Tenant, sub *registry.Subscription) (string, error) {
	if sub == nil || sub.ExternalCustomerID == "" {
		return "", errs.NewAccessError(errs.ErrorTypeValidation, "open_portal",
			fmt.Errorf("no billing account on file")).WithTenant(tenant.ID)
	}

	returnURL := c.baseURL + "/dashboard/billing"
	if tenant.Slug != "" {
		returnURL += "?" + url.Values{"tenant": {tenant.Slug}}.Encode()
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(sub.ExternalCustomerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := c.newPortalSession(params)
	if err != nil {
		return "", errs.NewAccessError(errs.ErrorTypeUpstream, "open_portal", err).WithTenant(tenant.ID)
	}
	return session.URL, nil
}
