// Copyright The taxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package taxyerr defines the fixed error taxonomy shared by every
// subsystem of the gateway core.
package taxyerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the fixed set of user-visible error variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidListeningAddress
	KindInvalidServerAddress
	KindInvalidSubjectName
	KindInvalidMultiaddr
	KindTlsTerminationConfigMissing
	KindFailedToGenerateSelfSignedCertificate
	KindFailedToReadCertificate
	KindFailedToReadPrivateKey
	KindInvalidShortId
	KindIdNotFound
	KindIdAlreadyExists
	KindAcmeAccountCreationFailed
	KindUnauthorized
	KindInvalidLoginCredentials
	KindTooManyLoginAttempts
	KindFailedToCreateAccount
	KindFailedToFetchLog
	KindFailedToInvokeRpc
)

func (k Kind) String() string {
	switch k {
	case KindInvalidListeningAddress:
		return "invalid_listening_address"
	case KindInvalidServerAddress:
		return "invalid_server_address"
	case KindInvalidSubjectName:
		return "invalid_subject_name"
	case KindInvalidMultiaddr:
		return "invalid_multiaddr"
	case KindTlsTerminationConfigMissing:
		return "tls_termination_config_missing"
	case KindFailedToGenerateSelfSignedCertificate:
		return "failed_to_generate_self_signed_certificate"
	case KindFailedToReadCertificate:
		return "failed_to_read_certificate"
	case KindFailedToReadPrivateKey:
		return "failed_to_read_private_key"
	case KindInvalidShortId:
		return "invalid_short_id"
	case KindIdNotFound:
		return "id_not_found"
	case KindIdAlreadyExists:
		return "id_already_exists"
	case KindAcmeAccountCreationFailed:
		return "acme_account_creation_failed"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidLoginCredentials:
		return "invalid_login_credentials"
	case KindTooManyLoginAttempts:
		return "too_many_login_attempts"
	case KindFailedToCreateAccount:
		return "failed_to_create_account"
	case KindFailedToFetchLog:
		return "failed_to_fetch_log"
	case KindFailedToInvokeRpc:
		return "failed_to_invoke_rpc"
	default:
		return "unknown"
	}
}

// Error is the concrete type behind every error this package returns.
// Data carries the offending value (an address, a name, an id) when the
// Kind calls for one.
type Error struct {
	Kind Kind
	Data string
}

func (e *Error) Error() string {
	if e.Data == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Data)
}

func New(kind Kind, data string) *Error {
	return &Error{Kind: kind, Data: data}
}

// Is reports whether err is a *Error of the given kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == kind
}

func InvalidListeningAddress(addr string) error {
	return New(KindInvalidListeningAddress, addr)
}

func InvalidServerAddress(addr string) error {
	return New(KindInvalidServerAddress, addr)
}

func InvalidSubjectName(name string) error {
	return New(KindInvalidSubjectName, name)
}

func InvalidMultiaddr(addr string) error {
	return New(KindInvalidMultiaddr, addr)
}

func TlsTerminationConfigMissing() error {
	return New(KindTlsTerminationConfigMissing, "")
}

func FailedToGenerateSelfSignedCertificate() error {
	return New(KindFailedToGenerateSelfSignedCertificate, "")
}

func FailedToReadCertificate() error {
	return New(KindFailedToReadCertificate, "")
}

func FailedToReadPrivateKey() error {
	return New(KindFailedToReadPrivateKey, "")
}

func InvalidShortId(id string) error {
	return New(KindInvalidShortId, id)
}

func IdNotFound(id string) error {
	return New(KindIdNotFound, id)
}

func IdAlreadyExists(id string) error {
	return New(KindIdAlreadyExists, id)
}

func AcmeAccountCreationFailed() error {
	return New(KindAcmeAccountCreationFailed, "")
}

func Unauthorized() error {
	return New(KindUnauthorized, "")
}

func InvalidLoginCredentials() error {
	return New(KindInvalidLoginCredentials, "")
}

func TooManyLoginAttempts() error {
	return New(KindTooManyLoginAttempts, "")
}

func FailedToCreateAccount() error {
	return New(KindFailedToCreateAccount, "")
}

func FailedToFetchLog() error {
	return New(KindFailedToFetchLog, "")
}

func FailedToInvokeRpc() error {
	return New(KindFailedToInvokeRpc, "")
}
