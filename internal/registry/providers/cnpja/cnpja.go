// Package cnpja adapts the commercial CNPJá API. The token is optional; without
// it the upstream usually answers 401, which the chain treats as a failed attempt.
package cnpja

import (
	"context"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/models"
	"cnpjota/internal/registry/providers"
)

const (
	Name           = "CNPJá"
	Priority       = 3
	DefaultBaseURL = "https://api.cnpja.com"
)

type Provider struct {
	src *providers.HTTPSource
}

// New builds the adapter. Pass providers.WithHeader("Authorization", token)
// to authenticate.
func New(opts ...providers.SourceOption) *Provider {
	return &Provider{src: providers.NewHTTPSource(Name, DefaultBaseURL, opts...)}
}

func (p *Provider) Name() string  { return Name }
func (p *Provider) Priority() int { return Priority }

func (p *Provider) Fetch(ctx context.Context, cnpj domain.CNPJ) (*models.Record, error) {
	var resp response
	if err := p.src.GetJSON(ctx, "/office/"+cnpj.String(), &resp); err != nil {
		return nil, err
	}
	return providers.RequireLegalName(Name, toRecord(cnpj, resp))
}

type described struct {
	ID        providers.FlexString `json:"id"`
	Descricao string               `json:"descricao"`
}

type response struct {
	RazaoSocial      string              `json:"razao_social"`
	CapitalSocial    providers.FlexFloat `json:"capital_social"`
	NaturezaJuridica *described          `json:"natureza_juridica"`
	Porte            *described          `json:"porte"`
	Estabelecimento  struct {
		CNPJ                  string     `json:"cnpj"`
		NomeFantasia          string     `json:"nome_fantasia"`
		SituacaoCadastral     string     `json:"situacao_cadastral"`
		DataSituacaoCadastral string     `json:"data_situacao_cadastral"`
		DataInicioAtividade   string     `json:"data_inicio_atividade"`
		AtividadePrincipal    *described `json:"atividade_principal"`
		Estado                *struct {
			Sigla string `json:"sigla"`
		} `json:"estado"`
		Cidade *struct {
			Nome string `json:"nome"`
		} `json:"cidade"`
		Logradouro  string               `json:"logradouro"`
		Numero      string               `json:"numero"`
		Complemento string               `json:"complemento"`
		Bairro      string               `json:"bairro"`
		CEP         providers.FlexString `json:"cep"`
		DDD1        string               `json:"ddd1"`
		Telefone1   string               `json:"telefone1"`
		Email       string               `json:"email"`
	} `json:"estabelecimento"`
	Socios []struct {
		Nome         string `json:"nome"`
		Qualificacao string `json:"qualificacao"`
	} `json:"socios"`
}

func descOf(d *described) *string {
	if d == nil {
		return nil
	}
	return models.String(d.Descricao)
}

func toRecord(cnpj domain.CNPJ, r response) *models.Record {
	e := r.Estabelecimento
	rec := &models.Record{
		CNPJ:                    cnpj.String(),
		LegalName:               r.RazaoSocial,
		TradeName:               models.String(e.NomeFantasia),
		MainActivityDescription: descOf(e.AtividadePrincipal),
		LegalNature:             descOf(r.NaturezaJuridica),
		OpenedOn:                models.String(e.DataInicioAtividade),
		Status:                  models.String(e.SituacaoCadastral),
		StatusDate:              models.String(e.DataSituacaoCadastral),
		Capital:                 r.CapitalSocial.Ptr(),
		Size:                    descOf(r.Porte),
		Address: models.Address{
			Street:     models.String(e.Logradouro),
			Number:     models.String(e.Numero),
			Complement: models.String(e.Complemento),
			District:   models.String(e.Bairro),
			ZipCode:    e.CEP.Ptr(),
		},
		Contact: models.Contact{
			Email: models.String(e.Email),
		},
	}
	if e.AtividadePrincipal != nil {
		rec.MainActivityCode = e.AtividadePrincipal.ID.Ptr()
	}
	if e.Cidade != nil {
		rec.Address.City = models.String(e.Cidade.Nome)
	}
	if e.Estado != nil {
		rec.Address.State = models.String(e.Estado.Sigla)
	}
	if e.DDD1 != "" && e.Telefone1 != "" {
		rec.Contact.Phone = models.String(e.DDD1 + e.Telefone1)
	}
	if r.Socios != nil {
		rec.Partners = make([]models.Partner, 0, len(r.Socios))
		for _, s := range r.Socios {
			rec.Partners = append(rec.Partners, models.Partner{
				Name: s.Nome,
				Role: models.String(s.Qualificacao),
			})
		}
	}
	return rec
}
