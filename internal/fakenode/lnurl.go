package fakenode

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// AddUser registers a Lightning Address user and returns the address
func (n *Node) AddUser(name string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.users == nil {
		n.users = make(map[string]bool)
	}
	n.users[name] = true
	return name + "@" + n.Host()
}

func (n *Node) knownUser(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.users[name]
}

func (n *Node) lnurlMetadata(user string) string {
	metadata, _ := json.Marshal([][2]string{
		{"text/plain", "Payment to " + user},
		{"text/identifier", user + "@" + n.Host()},
	})
	return string(metadata)
}

func lnurlError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"status": "ERROR", "reason": reason})
}

func (n *Node) handleLNURLParams(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	if !n.knownUser(user) {
		lnurlError(w, http.StatusNotFound, "unknown user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tag":         "payRequest",
		"callback":    n.server.URL + "/lnurlp/" + user + "/callback",
		"minSendable": n.opts.MinSendableMsat,
		"maxSendable": n.opts.MaxSendableMsat,
		"metadata":    n.lnurlMetadata(user),
	})
}

func (n *Node) handleLNURLCallback(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	if !n.knownUser(user) {
		lnurlError(w, http.StatusNotFound, "unknown user")
		return
	}

	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		lnurlError(w, http.StatusOK, "amount is required")
		return
	}
	if amount < n.opts.MinSendableMsat || amount > n.opts.MaxSendableMsat {
		lnurlError(w, http.StatusOK, "amount out of range")
		return
	}

	preimage, hash := newPreimage()
	inv, err := n.addInvoice(hash, preimage, (amount+999)/1000, "Payment to "+user)
	if err != nil {
		lnurlError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pr":     inv.paymentRequest,
		"routes": []any{},
	})
}
