package log

import "testing"

func TestDirectionString(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{DirectionIn, "IN"},
		{DirectionOut, "OUT"},
		{Direction(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.dir.String()
		if got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestLayerString(t *testing.T) {
	tests := []struct {
		layer Layer
		want  string
	}{
		{LayerMux, "MUX"},
		{LayerSocket, "SOCKET"},
		{LayerSecurity, "SECURITY"},
		{Layer(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.layer.String()
		if got != tt.want {
			t.Errorf("Layer(%d).String() = %q, want %q", tt.layer, got, tt.want)
		}
	}
}

func TestCategoryString(t *testing.T) {
	tests := []struct {
		cat  Category
		want string
	}{
		{CategoryAccept, "ACCEPT"},
		{CategoryState, "STATE"},
		{CategoryHandshake, "HANDSHAKE"},
		{CategoryFrame, "FRAME"},
		{CategoryControl, "CONTROL"},
		{CategoryError, "ERROR"},
		{Category(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.cat.String()
		if got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.cat, got, tt.want)
		}
	}
}

func TestRoleString(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleServer, "SERVER"},
		{RoleClient, "CLIENT"},
		{Role(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.role.String()
		if got != tt.want {
			t.Errorf("Role(%d).String() = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestAcceptOutcomeString(t *testing.T) {
	tests := []struct {
		outcome AcceptOutcome
		want    string
	}{
		{AcceptOutcomeConnection, "CONNECTION"},
		{AcceptOutcomeEmpty, "EMPTY"},
		{AcceptOutcomeNetworkError, "NETWORK_ERROR"},
		{AcceptOutcomeCertificateError, "CERTIFICATE_ERROR"},
		{AcceptOutcome(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.outcome.String()
		if got != tt.want {
			t.Errorf("AcceptOutcome(%d).String() = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}

func TestStateEntityString(t *testing.T) {
	tests := []struct {
		entity StateEntity
		want   string
	}{
		{StateEntityListener, "LISTENER"},
		{StateEntityConnection, "CONNECTION"},
		{StateEntityClient, "CLIENT"},
		{StateEntity(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.entity.String()
		if got != tt.want {
			t.Errorf("StateEntity(%d).String() = %q, want %q", tt.entity, got, tt.want)
		}
	}
}

func TestControlTypeString(t *testing.T) {
	tests := []struct {
		ct   ControlType
		want string
	}{
		{ControlKeepAlive, "KEEPALIVE"},
		{ControlKeepAliveTimeout, "KEEPALIVE_TIMEOUT"},
		{ControlType(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.ct.String()
		if got != tt.want {
			t.Errorf("ControlType(%d).String() = %q, want %q", tt.ct, got, tt.want)
		}
	}
}

func TestEnumValuesStable(t *testing.T) {
	// Capture files outlive builds; the integer values are part of the format.
	if DirectionIn != 0 || DirectionOut != 1 {
		t.Error("Direction values changed")
	}
	if LayerMux != 0 || LayerSocket != 1 || LayerSecurity != 2 {
		t.Error("Layer values changed")
	}
	if CategoryAccept != 0 || CategoryState != 1 || CategoryHandshake != 2 ||
		CategoryFrame != 3 || CategoryControl != 4 || CategoryError != 5 {
		t.Error("Category values changed")
	}
	if AcceptOutcomeConnection != 0 || AcceptOutcomeEmpty != 1 ||
		AcceptOutcomeNetworkError != 2 || AcceptOutcomeCertificateError != 3 {
		t.Error("AcceptOutcome values changed")
	}
	if StateEntityListener != 0 || StateEntityConnection != 1 || StateEntityClient != 2 {
		t.Error("StateEntity values changed")
	}
}
