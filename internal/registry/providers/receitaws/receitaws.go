// Package receitaws adapts https://receitaws.com.br, the last-resort source.
// The public tier allows three requests per minute; callers should pair it
// with providers.WithRateLimit.
package receitaws

import (
	"context"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/models"
	"cnpjota/internal/registry/providers"
)

const (
	Name           = "ReceitaWS"
	Priority       = 4
	DefaultBaseURL = "https://www.receitaws.com.br/v1/cnpj"
)

type Provider struct {
	src *providers.HTTPSource
}

func New(opts ...providers.SourceOption) *Provider {
	return &Provider{src: providers.NewHTTPSource(Name, DefaultBaseURL, opts...)}
}

func (p *Provider) Name() string  { return Name }
func (p *Provider) Priority() int { return Priority }

func (p *Provider) Fetch(ctx context.Context, cnpj domain.CNPJ) (*models.Record, error) {
	var resp response
	if err := p.src.GetJSON(ctx, "/"+cnpj.String(), &resp); err != nil {
		return nil, err
	}
	// errors arrive as HTTP 200 with status=ERROR
	if resp.Status == "ERROR" {
		msg := resp.Message
		if msg == "" {
			msg = "upstream reported an error"
		}
		return nil, providers.NewProviderError(providers.ErrorBadData, Name, msg, nil)
	}
	return providers.RequireLegalName(Name, toRecord(cnpj, resp))
}

type response struct {
	Status             string `json:"status"`
	Message            string `json:"message"`
	CNPJ               string `json:"cnpj"`
	Nome               string `json:"nome"`
	Fantasia           string `json:"fantasia"`
	Abertura           string `json:"abertura"`
	AtividadePrincipal []struct {
		Code string `json:"code"`
		Text string `json:"text"`
	} `json:"atividade_principal"`
	NaturezaJuridica string               `json:"natureza_juridica"`
	Situacao         string               `json:"situacao"`
	DataSituacao     string               `json:"data_situacao"`
	CapitalSocial    providers.FlexFloat  `json:"capital_social"`
	Porte            string               `json:"porte"`
	Logradouro       string               `json:"logradouro"`
	Numero           string               `json:"numero"`
	Complemento      string               `json:"complemento"`
	Bairro           string               `json:"bairro"`
	Municipio        string               `json:"municipio"`
	UF               string               `json:"uf"`
	CEP              providers.FlexString `json:"cep"`
	Telefone         string               `json:"telefone"`
	Email            string               `json:"email"`
	QSA              []struct {
		Nome string `json:"nome"`
		Qual string `json:"qual"`
	} `json:"qsa"`
}

func toRecord(cnpj domain.CNPJ, r response) *models.Record {
	rec := &models.Record{
		CNPJ:        cnpj.String(),
		LegalName:   r.Nome,
		TradeName:   models.String(r.Fantasia),
		LegalNature: models.String(r.NaturezaJuridica),
		OpenedOn:    models.String(r.Abertura),
		Status:      models.String(r.Situacao),
		StatusDate:  models.String(r.DataSituacao),
		Capital:     r.CapitalSocial.Ptr(),
		Size:        models.String(r.Porte),
		Address: models.Address{
			Street:     models.String(r.Logradouro),
			Number:     models.String(r.Numero),
			Complement: models.String(r.Complemento),
			District:   models.String(r.Bairro),
			City:       models.String(r.Municipio),
			State:      models.String(r.UF),
			ZipCode:    r.CEP.Ptr(),
		},
		Contact: models.Contact{
			Phone: models.String(r.Telefone),
			Email: models.String(r.Email),
		},
	}
	if len(r.AtividadePrincipal) > 0 {
		rec.MainActivityCode = models.String(r.AtividadePrincipal[0].Code)
		rec.MainActivityDescription = models.String(r.AtividadePrincipal[0].Text)
	}
	if r.QSA != nil {
		rec.Partners = make([]models.Partner, 0, len(r.QSA))
		for _, s := range r.QSA {
			rec.Partners = append(rec.Partners, models.Partner{
				Name: s.Nome,
				Role: models.String(s.Qual),
			})
		}
	}
	return rec
}
