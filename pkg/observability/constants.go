// Copyright 2025 Kadir Pekel
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

package observability

// Span names.
const (
	SpanHTTPRequest = "http.request"
	SpanDispatch    = "a2ui.dispatch"
	SpanBroadcast   = "a2ui.session.broadcast"
	SpanClientEvent = "a2ui.client_event"
)

// Span attribute keys.
const (
	AttrHTTPMethod       = "http.method"
	AttrHTTPRoute        = "http.route"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"

	AttrConnectionID = "a2ui.connection_id"
	AttrSurfaceID    = "a2ui.surface_id"
	AttrSessionID    = "a2ui.session_id"
	AttrEventID      = "a2ui.event_id"
	AttrMessageKind  = "a2ui.message_kind"
	AttrVersion      = "a2ui.version"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

const (
	DefaultServiceName  = "a2ui"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
	DefaultNamespace    = "a2ui"
)
