package socket

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/config"
	"github.com/lukakralj/GpioManager-Server/internal/secure"
)

// process runs one inbound message through the validation pipeline:
// decrypt, parse, token presence, required fields, token verification,
// dispatch, response encryption. Exactly one response is emitted, whatever
// happens, and a handler failure never takes down the connection.
func (s *Server) process(client *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.respondErr(client, "", CodeInvalidFormat)
		return
	}

	ep, known := s.endpoints.Lookup(env.Type)
	if !known {
		s.logger.Debug("unknown message type", "type", env.Type, "client", client.id)
		s.respondErr(client, env.Type, CodeInvalidFormat)
		return
	}

	fields, code := s.decryptBody(client, ep, env.Body)
	if code != "" {
		s.respondErr(client, ep.Type, code)
		return
	}

	req := &Request{Type: ep.Type, Fields: fields, Client: client}

	if !ep.NoAuth {
		// Token presence is checked before required fields: a request that
		// carries no token at all is an authentication failure, not a
		// malformed one.
		token, ok := fields["accessToken"].(string)
		if !ok || token == "" {
			s.respondErr(client, ep.Type, CodeNoAuth)
			return
		}
		if missingField(fields, ep.Required) {
			s.respondErr(client, ep.Type, CodeInvalidFormat)
			return
		}
		identity, valid := s.tokens.Verify(token)
		if !valid {
			s.respondErr(client, ep.Type, CodeBadAuth)
			return
		}
		req.Token = token
		req.Identity = identity

		// A reconnected client presenting a still-valid token gets its
		// session crypto material bound to the new connection.
		if _, bound := client.sessionKeys(); !bound {
			if keys, ok := s.tokens.Keys(token); ok {
				client.bindSession(token, keys)
			}
		}
	} else if missingField(fields, ep.Required) {
		s.respondErr(client, ep.Type, CodeInvalidFormat)
		return
	}

	result, err := s.dispatch(ep, req)
	if err != nil {
		code := CodeServerErr
		if serr, ok := err.(*Error); ok {
			code = serr.Code
		} else {
			s.logger.Error("handler failed", "type", ep.Type, "client", client.id, "error", err)
		}
		s.respondErr(client, ep.Type, code)
		return
	}

	s.respond(client, ep, responseType(ep.Type), okBody(result))
}

// dispatch invokes the handler, converting a panic into an error so one bad
// handler cannot terminate the connection or the process.
func (s *Server) dispatch(ep Endpoint, req *Request) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", "type", ep.Type, "panic", r)
			result, err = nil, NewError(CodeServerErr)
		}
	}()
	return ep.Handle(context.Background(), req)
}

func missingField(fields map[string]any, required []string) bool {
	for _, key := range required {
		if _, ok := fields[key]; !ok {
			return true
		}
	}
	return false
}

// decryptBody turns the envelope body into a field map. In hybrid mode an
// encrypted body arrives as a JSON string: RSA ciphertext for login, AES
// ciphertext under the connection's session key for everything else. A body
// that is already a JSON object is accepted as plaintext in either mode, so
// clients on an already-secure channel can skip payload encryption; a login
// object may carry its credentials inside an RSA-encrypted "secret" field,
// which is unwrapped here.
func (s *Server) decryptBody(client *Client, ep Endpoint, body json.RawMessage) (map[string]any, string) {
	if len(body) == 0 {
		return map[string]any{}, ""
	}

	var encrypted string
	if err := json.Unmarshal(body, &encrypted); err != nil {
		// Not a string: must be a plain object.
		fields := map[string]any{}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, CodeInvalidFormat
		}
		if s.encryptionMode == config.EncryptionHybrid && ep.Type == TypeLogin {
			if code := s.openLoginSecret(fields); code != "" {
				return nil, code
			}
		}
		return fields, ""
	}

	if s.encryptionMode != config.EncryptionHybrid {
		return nil, CodeInvalidFormat
	}

	var plaintext []byte
	if ep.Type == TypeLogin {
		decrypted, err := s.keys.Decrypt(encrypted)
		if err != nil {
			return nil, CodeBadEncrypt
		}
		plaintext = decrypted
	} else {
		keys, ok := client.sessionKeys()
		if !ok || len(keys.AESKey) == 0 {
			return nil, CodeBadEncrypt
		}
		decrypted, err := secure.SymmetricDecrypt(keys.AESKey, encrypted)
		if err != nil {
			return nil, CodeBadEncrypt
		}
		plaintext = decrypted
	}

	fields := map[string]any{}
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, CodeInvalidFormat
	}
	return fields, ""
}

// openLoginSecret unwraps the RSA-encrypted credential blob of a hybrid
// login, merging its fields into the plaintext ones. One RSA-OAEP block
// cannot carry a base64 SPKI client key alongside the credentials, so the
// client key, being public material, rides as a plaintext "clientKey"
// field while only the secrets (username, password, aesKey) are encrypted.
// A login without a "secret" field passes through untouched.
func (s *Server) openLoginSecret(fields map[string]any) string {
	encrypted, ok := fields["secret"].(string)
	if !ok {
		return ""
	}
	plain, err := s.keys.Decrypt(encrypted)
	if err != nil {
		return CodeBadEncrypt
	}
	secrets := map[string]any{}
	if err := json.Unmarshal(plain, &secrets); err != nil {
		return CodeInvalidFormat
	}
	delete(fields, "secret")
	for k, v := range secrets {
		fields[k] = v
	}
	return ""
}

// respond encrypts the response body for the client when a session key (or,
// for login, a client RSA key) applies, then queues the envelope.
func (s *Server) respond(client *Client, ep Endpoint, respType string, body map[string]any) {
	plain, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("marshalling response body", "type", respType, "error", err)
		s.sendEnvelope(client, respType, errBody(CodeServerErr))
		return
	}

	if s.encryptionMode == config.EncryptionHybrid && ep.Type != TypeServerKey {
		if keys, ok := client.sessionKeys(); ok {
			if ep.Type == TypeLogin && keys.ClientKey != "" {
				ct, err := secure.EncryptForPeer(keys.ClientKey, plain)
				if err != nil {
					s.logger.Warn("encrypting login response failed", "client", client.id, "error", err)
					s.sendEnvelope(client, respType, errBody(CodeServerErr))
					return
				}
				s.sendRaw(client, respType, ct)
				return
			}
			if ep.Type != TypeLogin && len(keys.AESKey) > 0 {
				ct, err := secure.SymmetricEncrypt(keys.AESKey, plain)
				if err != nil {
					s.logger.Warn("encrypting response failed", "client", client.id, "error", err)
					s.sendEnvelope(client, respType, errBody(CodeServerErr))
					return
				}
				s.sendRaw(client, respType, ct)
				return
			}
		}
	}

	s.sendEnvelope(client, respType, body)
}

// respondErr sends a plain ERR response. Error responses are never
// encrypted: most of them occur before a session is established, and a
// client that cannot decrypt an error learns nothing from it either way.
func (s *Server) respondErr(client *Client, requestType, code string) {
	s.sendEnvelope(client, responseType(requestType), errBody(code))
}

func (s *Server) sendEnvelope(client *Client, respType string, body map[string]any) {
	raw, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("marshalling response", "type", respType, "error", err)
		return
	}
	data, err := json.Marshal(Envelope{Type: respType, Body: raw})
	if err != nil {
		s.logger.Error("marshalling envelope", "type", respType, "error", err)
		return
	}
	client.trySend(data)
}

// sendRaw sends an envelope whose body is an encrypted base64 string.
func (s *Server) sendRaw(client *Client, respType, ciphertext string) {
	raw, err := json.Marshal(ciphertext)
	if err != nil {
		return
	}
	data, err := json.Marshal(Envelope{Type: respType, Body: raw})
	if err != nil {
		return
	}
	client.trySend(data)
}

// decodeSessionKey decodes and validates a client-supplied base64 AES key.
func decodeSessionKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, NewError(CodeInvalidFormat)
	}
	if len(key) != secure.SessionKeyLen {
		return nil, NewError(CodeInvalidFormat)
	}
	return key, nil
}
