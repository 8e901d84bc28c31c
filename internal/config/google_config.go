package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	clientIDVar      = "GOOGLE_CLIENT_ID"
	clientSecretVar  = "GOOGLE_CLIENT_SECRET"
	issuerVar        = "GOOGLE_ISSUER"
	scopesVar        = "GOOGLE_SCOPES"
	loopbackAddrVar  = "LOOPBACK_ADDR"
	mapsAPIKeyVar    = "MAPS_API_KEY"
	spreadsheetIDVar = "SPREADSHEET_ID"
	sheetNameVar     = "SHEET_NAME"
)

var defaultScopes = []string{
	"openid",
	"profile",
	"email",
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/spreadsheets",
}

type Google struct {
	v *viper.Viper
}

var _ GoogleConfig = Google{}

func (g Google) GetClientID() string {
	return g.v.GetString(clientIDVar)
}

func (g Google) GetClientSecret() string {
	return g.v.GetString(clientSecretVar)
}

func (g Google) GetIssuer() string {
	return g.v.GetString(issuerVar)
}

// GetScopes accepts space or comma separated scopes.
func (g Google) GetScopes() []string {
	raw := g.v.GetString(scopesVar)
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
}

func (g Google) GetLoopbackAddr() string {
	return g.v.GetString(loopbackAddrVar)
}

func (g Google) GetMapsAPIKey() string {
	return g.v.GetString(mapsAPIKeyVar)
}

func (g Google) GetSpreadsheetID() string {
	return g.v.GetString(spreadsheetIDVar)
}

func (g Google) GetSheetName() string {
	return g.v.GetString(sheetNameVar)
}
