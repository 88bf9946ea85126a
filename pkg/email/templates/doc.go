// Package templates holds the HTML bodies of the billing lifecycle emails
// as templ components, plus Render for turning a component into a string
// that an email sender accepts.
//
//	body, err := templates.Render(ctx, templates.TrialStarted(templates.TrialStartedParams{
//		TrialEnds: "November 1, 2026",
//	}))
package templates
