// Package brasilapi adapts https://brasilapi.com.br, the first source in the chain.
package brasilapi

import (
	"context"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/models"
	"cnpjota/internal/registry/providers"
)

const (
	Name           = "BrasilAPI"
	Priority       = 1
	DefaultBaseURL = "https://brasilapi.com.br/api/cnpj/v1"
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
	return providers.RequireLegalName(Name, toRecord(cnpj, resp))
}

type response struct {
	CNPJ                      string               `json:"cnpj"`
	RazaoSocial               string               `json:"razao_social"`
	NomeFantasia              string               `json:"nome_fantasia"`
	CNAEFiscal                providers.FlexString `json:"cnae_fiscal"`
	CNAEFiscalDescricao       string               `json:"cnae_fiscal_descricao"`
	DescricaoNaturezaJuridica string               `json:"descricao_natureza_juridica"`
	DataInicioAtividade       string               `json:"data_inicio_atividade"`
	DescricaoSituacao         string               `json:"descricao_situacao_cadastral"`
	DataSituacao              string               `json:"data_situacao_cadastral"`
	CapitalSocial             providers.FlexFloat  `json:"capital_social"`
	DescricaoPorte            string               `json:"descricao_porte"`
	Logradouro                string               `json:"logradouro"`
	Numero                    string               `json:"numero"`
	Complemento               string               `json:"complemento"`
	Bairro                    string               `json:"bairro"`
	Municipio                 string               `json:"municipio"`
	UF                        string               `json:"uf"`
	CEP                       providers.FlexString `json:"cep"`
	DDDTelefone1              string               `json:"ddd_telefone_1"`
	Email                     string               `json:"email"`
	QSA                       []partner            `json:"qsa"`
}

type partner struct {
	NomeSocio            string `json:"nome_socio"`
	QualificacaoSocio    string `json:"qualificacao_socio"`
	DataEntradaSociedade string `json:"data_entrada_sociedade"`
	CPFCNPJSocio         string `json:"cpf_cnpj_socio"`
}

func toRecord(cnpj domain.CNPJ, r response) *models.Record {
	rec := &models.Record{
		CNPJ:                    cnpj.String(),
		LegalName:               r.RazaoSocial,
		TradeName:               models.String(r.NomeFantasia),
		MainActivityCode:        r.CNAEFiscal.Ptr(),
		MainActivityDescription: models.String(r.CNAEFiscalDescricao),
		LegalNature:             models.String(r.DescricaoNaturezaJuridica),
		OpenedOn:                models.String(r.DataInicioAtividade),
		Status:                  models.String(r.DescricaoSituacao),
		StatusDate:              models.String(r.DataSituacao),
		Capital:                 r.CapitalSocial.Ptr(),
		Size:                    models.String(r.DescricaoPorte),
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
			Phone: models.String(r.DDDTelefone1),
			Email: models.String(r.Email),
		},
	}
	if r.QSA != nil {
		rec.Partners = make([]models.Partner, 0, len(r.QSA))
		for _, s := range r.QSA {
			rec.Partners = append(rec.Partners, models.Partner{
				Name:      s.NomeSocio,
				Role:      models.String(s.QualificacaoSocio),
				EntryDate: models.String(s.DataEntradaSociedade),
				TaxID:     models.String(s.CPFCNPJSocio),
			})
		}
	}
	return rec
}
