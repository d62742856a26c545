package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sdk/internal/threedsecure"
	"github.com/kevin07696/gateway-sdk/pkg/encoding"
)

func (a *app) printConfiguration(ctx context.Context) error {
	cfg, err := a.source.Configuration(ctx)
	if err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"environment":                      cfg.Environment(),
		"merchant_id":                      cfg.MerchantID(),
		"merchant_account_id":              cfg.MerchantAccountID(),
		"client_api_url":                   cfg.ClientAPIURL(),
		"assets_url":                       cfg.AssetsURL(),
		"graphql_enabled":                  cfg.IsGraphQLEnabled(),
		"analytics_enabled":                cfg.IsAnalyticsEnabled(),
		"paypal_enabled":                   cfg.IsPayPalEnabled(),
		"three_d_secure_enabled":           cfg.IsThreeDSecureEnabled(),
		"three_d_secure_versions":          cfg.ThreeDSecureSupportedVersions(),
		"cvv_challenge":                    cfg.IsCVVChallengePresent(),
		"postal_code_challenge":            cfg.IsPostalCodeChallengePresent(),
		"fraud_data_collection":            cfg.IsFraudDataCollectionEnabled(),
		"supported_card_types":             cfg.SupportedCardTypes(),
		"cardinal_authentication_required": cfg.CardinalAuthenticationJWT() != "",
	})
}

func (a *app) postGraphQL(ctx context.Context, query string) error {
	if query == "" {
		return fmt.Errorf("-query is required")
	}

	cfg, err := a.source.Configuration(ctx)
	if err != nil {
		return err
	}

	body, err := a.graphQL.PostQuery(ctx, query, cfg)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(os.Stdout, body)
	return err
}

func (a *app) verify(ctx context.Context, opts options) error {
	req := &threedsecure.Request{
		Nonce:            opts.nonce,
		Amount:           opts.amount,
		VersionRequested: threedsecure.Version(opts.version),
	}

	outcome, departure := a.orchestrator.Verify(ctx, req)
	if departure != nil {
		// consoleHost already printed the redirect
		a.logger.Info("Open the redirect URL, then run -action=resume with the final return URL",
			zap.String("correlation_token", departure.CorrelationToken),
		)
		return nil
	}

	return printOutcome(outcome)
}

func (a *app) resume(ctx context.Context, opts options) error {
	status := threedsecure.RedirectSuccess
	if opts.cancelled {
		status = threedsecure.RedirectCancelled
	}

	done := make(chan *threedsecure.Outcome, 1)
	a.orchestrator.OnRedirectResult(ctx, threedsecure.RedirectResult{
		Status:    status,
		ReturnURL: opts.returnURL,
	}, func(outcome *threedsecure.Outcome) {
		done <- outcome
	})

	select {
	case outcome := <-done:
		return printOutcome(outcome)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printOutcome(outcome *threedsecure.Outcome) error {
	result := map[string]interface{}{
		"status": outcome.Kind.String(),
	}
	if outcome.Nonce != nil {
		result["nonce"] = outcome.Nonce
	}
	if outcome.GatewayMessage != "" {
		result["gateway_message"] = outcome.GatewayMessage
	}
	if outcome.Err != nil {
		result["error"] = outcome.Err.Error()
	}

	if err := printJSON(result); err != nil {
		return err
	}
	if outcome.Err != nil {
		return outcome.Err
	}
	return nil
}

func printJSON(v interface{}) error {
	data, err := encoding.EncodeJSON(v)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}
