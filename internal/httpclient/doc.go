// Package httpclient issues the benchmark's HTTP requests.
//
// A [RequestTemplate] is built once from configuration and shared by every
// worker. An [Issuer] sends it either over the pooled [SharedClient] (reuse
// mode) or over a short-lived client that is discarded after the response:
//
//	tmpl, err := httpclient.NewRequestTemplateFromConfig(cfg)
//	if err != nil {
//		return err
//	}
//	issuer := httpclient.NewIssuer(httpclient.NewSharedClient(time.Second), time.Second, nil)
//	m := issuer.Issue(ctx, tmpl, true)
//
// Issue never fails. When no response arrives the measurement carries
// [StatusTransportFailure]. A [ResponseHandler] such as [JSONFields] may
// append numeric fields decoded from each received response.
package httpclient
