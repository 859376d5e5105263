// Copyright 2026 Sipconf Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sipfocus

import (
	goerrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
	"github.com/pkg/errors"
)

// ReferOpts shapes a membership REFER sent within the focus dialog.
type ReferOpts struct {
	// Method overrides the method the focus should use towards the referred
	// address (e.g. "BYE" for a membership removal).
	Method string
	// Params are URI parameters attached to the refer target, such as
	// "admin" or "isfocus".
	Params map[string]string
}

func (c *Client) NewOutbound(id LocalTag, from URI) *Outbound {
	from = from.Normalize()
	fromHeader := &sip.FromHeader{
		DisplayName: from.User,
		Address:     *from.GetURI(),
		Params:      sip.NewParams(),
	}
	fromHeader.Params.Add("tag", string(id))
	out := &Outbound{
		c:    c,
		id:   id,
		from: fromHeader,
	}
	c.cmu.Lock()
	c.active[id] = out
	c.cmu.Unlock()
	return out
}

// Outbound is the UAC side of one focus dialog: the INVITE that establishes
// it, in-dialog re-INVITEs, membership REFERs and the closing BYE.
type Outbound struct {
	c    *Client
	id   LocalTag
	from *sip.FromHeader

	mu       sync.RWMutex
	tag      RemoteTag
	invite   *sip.Request
	inviteOk *sip.Response
	to       *sip.ToHeader
	routes   []sip.RouteHeader
	cseq     uint32
}

func (c *Outbound) From() sip.Uri {
	return c.from.Address
}

func (c *Outbound) To() sip.Uri {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.to == nil {
		return sip.Uri{}
	}
	return c.to.Address
}

func (c *Outbound) ID() LocalTag {
	return c.id
}

func (c *Outbound) Tag() RemoteTag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tag
}

func (c *Outbound) RemoteHeaders() Headers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.inviteOk == nil {
		return nil
	}
	return c.inviteOk.Headers()
}

// RemoteContact returns the contact the focus advertised on the dialog, or
// nil before the INVITE completed. The conference core inspects it for the
// "isfocus" marker.
func (c *Outbound) RemoteContact() *sip.Uri {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.inviteOk == nil {
		return nil
	}
	cont := c.inviteOk.Contact()
	if cont == nil {
		return nil
	}
	u := cont.Address
	return &u
}

// Invite establishes the focus dialog. When admin is set, the Contact
// carries the "admin" parameter asserting this client is a conference
// administrator.
func (c *Outbound) Invite(transport Transport, to URI, user, pass string, sdpOffer []byte, admin bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	to = to.Normalize()
	toHeader := &sip.ToHeader{Address: *to.GetURI()}
	toHeader.Address.UriParams = make(sip.HeaderParams)
	switch transport {
	case TransportUDP:
		toHeader.Address.UriParams.Add("transport", "udp")
	case TransportTCP:
		toHeader.Address.UriParams.Add("transport", "tcp")
	}

	dest := to.GetDest()

	var (
		authHeader = ""
		req        *sip.Request
		resp       *sip.Response
		err        error
	)
authLoop:
	for {
		req, resp, err = c.attemptInvite(dest, toHeader, sdpOffer, authHeader, admin)
		if err != nil {
			return nil, err
		}
		switch resp.StatusCode {
		case 200:
			break authLoop
		default:
			return nil, fmt.Errorf("unexpected status from INVITE response: %w", &ErrorStatus{StatusCode: int(resp.StatusCode)})
		case 407:
			// auth required
		}
		if user == "" || pass == "" {
			return nil, goerrors.New("server required auth, but no username or password was provided")
		}
		headerVal := resp.GetHeader("Proxy-Authenticate")
		challenge, err := digest.ParseChallenge(headerVal.Value())
		if err != nil {
			return nil, errors.Wrap(err, "parsing challenge")
		}
		respTo := resp.To()
		if respTo == nil {
			return nil, goerrors.New("no 'To' header on Response")
		}

		cred, err := digest.Digest(challenge, digest.Options{
			Method:   req.Method.String(),
			URI:      respTo.Address.String(),
			Username: user,
			Password: pass,
		})
		if err != nil {
			return nil, errors.Wrap(err, "computing digest")
		}
		authHeader = cred.String()
		// Try again with a computed digest
	}

	c.invite, c.inviteOk = req, resp
	if cseq := req.CSeq(); cseq != nil {
		c.cseq = cseq.SeqNo
	}
	c.to = resp.To()
	if c.to == nil {
		return nil, goerrors.New("no To header in INVITE response")
	}
	tag, err := getToTag(resp)
	if err != nil {
		return nil, err
	}
	c.tag = tag

	if cont := resp.Contact(); cont != nil {
		req.Recipient = cont.Address
		if req.Recipient.Port == 0 {
			req.Recipient.Port = 5060
		}
	}

	c.routes = routeSetFromResponse(resp)

	return c.inviteOk.Body(), nil
}

// routeSetFromResponse extracts the UAC route set from the 2xx Record-Route
// headers, reversed per RFC 3261 section 12.1.2.
func routeSetFromResponse(resp *sip.Response) []sip.RouteHeader {
	rrs := resp.GetHeaders("Record-Route")
	if len(rrs) == 0 {
		return nil
	}
	routes := make([]sip.RouteHeader, 0, len(rrs))
	for i := len(rrs) - 1; i >= 0; i-- {
		val := strings.TrimSuffix(strings.TrimPrefix(rrs[i].Value(), "<"), ">")
		var u sip.Uri
		if err := sip.ParseUri(val, &u); err != nil {
			continue
		}
		routes = append(routes, sip.RouteHeader{Address: u})
	}
	return routes
}

func (c *Outbound) AckInvite() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invite == nil || c.inviteOk == nil {
		return goerrors.New("no established focus dialog")
	}
	return c.c.sipCli.WriteRequest(c.newAck(c.invite, c.inviteOk), sipgo.ClientRequestAddVia)
}

// newAck builds the ACK for a 2xx INVITE response: same Request-URI and CSeq
// number as the INVITE, To taken from the response so it carries the remote
// tag.
func (c *Outbound) newAck(invite *sip.Request, ok *sip.Response) *sip.Request {
	ack := sip.NewRequest(sip.ACK, invite.Recipient)
	ack.SetDestination(invite.Destination())
	if cid := invite.CallID(); cid != nil {
		ack.AppendHeader(cid)
	}
	if from := invite.From(); from != nil {
		ack.AppendHeader(from)
	}
	if to := ok.To(); to != nil {
		ack.AppendHeader(to)
	}
	if cseq := invite.CSeq(); cseq != nil {
		ack.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.ACK})
	}
	ack.AppendHeader(sip.NewHeader("Max-Forwards", "70"))
	for _, route := range c.routes {
		r := route
		ack.AppendHeader(&r)
	}
	return ack
}

func (c *Outbound) attemptInvite(dest string, to *sip.ToHeader, offer []byte, authHeader string, admin bool) (*sip.Request, *sip.Response, error) {
	req := sip.NewRequest(sip.INVITE, to.Address)
	req.SetDestination(dest)
	req.SetBody(offer)
	req.AppendHeader(to)
	req.AppendHeader(c.from)
	contact := &sip.ContactHeader{Address: c.from.Address}
	if admin {
		contact.Address = *WithParam(&contact.Address, ParamAdmin, "1")
	}
	req.AppendHeader(contact)

	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	req.AppendHeader(sip.NewHeader("Allow", "INVITE, ACK, CANCEL, BYE, NOTIFY, REFER, MESSAGE, OPTIONS, INFO, SUBSCRIBE"))

	if authHeader != "" {
		req.AppendHeader(sip.NewHeader("Proxy-Authorization", authHeader))
	}

	tx, err := c.c.sipCli.TransactionRequest(c.c.ctx, req)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Terminate()

	resp, err := sipResponse(tx)
	return req, resp, err
}

// Update sends an in-dialog re-INVITE carrying a fresh SDP offer; subject,
// when non-empty, is carried on the Subject header so the focus can adopt
// it. It returns the SDP answer.
func (c *Outbound) Update(sdpOffer []byte, subject string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invite == nil || c.inviteOk == nil {
		return nil, goerrors.New("no established focus dialog")
	}
	req := c.newInDialogRequest(sip.INVITE)
	req.SetBody(sdpOffer)
	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	if subject != "" {
		req.AppendHeader(sip.NewHeader("Subject", subject))
	}

	tx, err := c.c.sipCli.TransactionRequest(c.c.ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "sending re-INVITE")
	}
	defer tx.Terminate()
	resp, err := sipResponse(tx)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, &ErrorStatus{StatusCode: int(resp.StatusCode)}
	}
	_ = c.c.sipCli.WriteRequest(c.newAck(req, resp), sipgo.ClientRequestAddVia)
	return resp.Body(), nil
}

// SendRefer asks the focus to act on a membership target: add it (plain
// REFER), remove it (method override "BYE") or re-role it (an "admin"
// parameter on the target).
func (c *Outbound) SendRefer(target *sip.Uri, opts ReferOpts) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invite == nil || c.inviteOk == nil {
		return goerrors.New("no established focus dialog")
	}
	req := c.newInDialogRequest(sip.REFER)
	req.AppendHeader(sip.NewHeader("Refer-To", referToValue(target, opts)))
	req.AppendHeader(sip.NewHeader("Referred-By", fmt.Sprintf("<%s>", c.from.Address.String())))

	tx, err := c.c.sipCli.TransactionRequest(c.c.ctx, req)
	if err != nil {
		return errors.Wrap(err, "sending REFER")
	}
	defer tx.Terminate()
	resp, err := sipResponse(tx)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return &ErrorStatus{StatusCode: int(resp.StatusCode)}
	}
	return nil
}

// referToValue renders the Refer-To header. The method override travels as a
// URI parameter, the way conference servers expect membership operations.
func referToValue(target *sip.Uri, opts ReferOpts) string {
	u := *target
	for k, v := range opts.Params {
		u = *WithParam(&u, k, v)
	}
	if opts.Method != "" {
		u = *WithParam(&u, "method", strings.ToUpper(opts.Method))
	}
	return fmt.Sprintf("<%s>", u.String())
}

// newInDialogRequest builds a request addressed inside the established
// dialog: route, tags and Call-ID taken from the original INVITE exchange.
func (c *Outbound) newInDialogRequest(method sip.RequestMethod) *sip.Request {
	req := sip.NewRequest(method, c.invite.Recipient)
	req.SetDestination(c.invite.Destination())
	req.AppendHeader(c.from)
	req.AppendHeader(c.to)
	if cid := c.invite.CallID(); cid != nil {
		req.AppendHeader(cid)
	}
	c.cseq++
	req.AppendHeader(&sip.CSeqHeader{SeqNo: c.cseq, MethodName: method})
	req.AppendHeader(&sip.ContactHeader{Address: c.from.Address})
	req.AppendHeader(sip.NewHeader("Max-Forwards", "70"))
	for _, route := range c.routes {
		r := route
		req.AppendHeader(&r)
	}
	return req
}

func (c *Outbound) WriteRequest(req *sip.Request) error {
	return c.c.sipCli.WriteRequest(req, sipgo.ClientRequestAddVia)
}

func (c *Outbound) Transaction(req *sip.Request) (sip.ClientTransaction, error) {
	return c.c.sipCli.TransactionRequest(c.c.ctx, req)
}

func (c *Outbound) sendBye() {
	if c.invite == nil || c.inviteOk == nil {
		return // dialog wasn't established
	}
	bye := c.newInDialogRequest(sip.BYE)
	bye.AppendHeader(sip.NewHeader("User-Agent", c.c.conf.UserAgent))
	if c.c.closing.IsBroken() {
		// do not wait for a response
		_ = c.WriteRequest(bye)
		return
	}
	c.drop()
	tx, err := c.Transaction(bye)
	if err != nil {
		return
	}
	defer tx.Terminate()
	_, _ = sipResponse(tx)
}

func (c *Outbound) drop() {
	c.invite = nil
	c.inviteOk = nil
	c.routes = nil
}

func (c *Outbound) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop()
}

func (c *Outbound) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inviteOk != nil {
		c.sendBye()
	} else {
		c.drop()
	}
	c.c.cmu.Lock()
	delete(c.c.active, c.id)
	c.c.cmu.Unlock()
}
