// Package opencnpj adapts the public CNPJá office endpoint at open.cnpja.com.
package opencnpj

import (
	"context"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/models"
	"cnpjota/internal/registry/providers"
)

const (
	Name           = "OpenCNPJ"
	Priority       = 2
	DefaultBaseURL = "https://open.cnpja.com"
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
	if err := p.src.GetJSON(ctx, "/office/"+cnpj.String(), &resp); err != nil {
		return nil, err
	}
	return providers.RequireLegalName(Name, toRecord(cnpj, resp))
}

type text struct {
	ID   providers.FlexString `json:"id"`
	Text string               `json:"text"`
}

type member struct {
	Name   string `json:"name"`
	Person *struct {
		Name  string `json:"name"`
		TaxID string `json:"taxId"`
	} `json:"person"`
	Role  *text  `json:"role"`
	Since string `json:"since"`
}

type response struct {
	TaxID        string `json:"taxId"`
	Name         string `json:"name"`
	Alias        string `json:"alias"`
	Founded      string `json:"founded"`
	StatusDate   string `json:"statusDate"`
	Status       *text  `json:"status"`
	MainActivity *text  `json:"mainActivity"`
	Company      *struct {
		Name    string              `json:"name"`
		Equity  providers.FlexFloat `json:"equity"`
		Nature  *text               `json:"nature"`
		Size    *text               `json:"size"`
		Members []member            `json:"members"`
	} `json:"company"`
	Address *struct {
		Street   string               `json:"street"`
		Number   string               `json:"number"`
		Details  string               `json:"details"`
		District string               `json:"district"`
		City     string               `json:"city"`
		State    string               `json:"state"`
		Zip      providers.FlexString `json:"zip"`
	} `json:"address"`
	Phones []struct {
		Area   string `json:"area"`
		Number string `json:"number"`
	} `json:"phones"`
	Emails []struct {
		Address string `json:"address"`
	} `json:"emails"`
	Members []member `json:"members"`
}

func textOf(t *text) *string {
	if t == nil {
		return nil
	}
	return models.String(t.Text)
}

func toRecord(cnpj domain.CNPJ, r response) *models.Record {
	rec := &models.Record{
		CNPJ:       cnpj.String(),
		LegalName:  r.Name,
		TradeName:  models.String(r.Alias),
		OpenedOn:   models.String(r.Founded),
		Status:     textOf(r.Status),
		StatusDate: models.String(r.StatusDate),
	}
	if r.MainActivity != nil {
		rec.MainActivityCode = r.MainActivity.ID.Ptr()
		rec.MainActivityDescription = models.String(r.MainActivity.Text)
	}

	members := r.Members
	if c := r.Company; c != nil {
		if rec.LegalName == "" {
			rec.LegalName = c.Name
		}
		rec.LegalNature = textOf(c.Nature)
		rec.Capital = c.Equity.Ptr()
		rec.Size = textOf(c.Size)
		if members == nil {
			members = c.Members
		}
	}

	if a := r.Address; a != nil {
		rec.Address = models.Address{
			Street:     models.String(a.Street),
			Number:     models.String(a.Number),
			Complement: models.String(a.Details),
			District:   models.String(a.District),
			City:       models.String(a.City),
			State:      models.String(a.State),
			ZipCode:    a.Zip.Ptr(),
		}
	}
	if len(r.Phones) > 0 {
		rec.Contact.Phone = models.String(r.Phones[0].Area + r.Phones[0].Number)
	}
	if len(r.Emails) > 0 {
		rec.Contact.Email = models.String(r.Emails[0].Address)
	}

	if members != nil {
		rec.Partners = make([]models.Partner, 0, len(members))
		for _, m := range members {
			p := models.Partner{
				Name:      m.Name,
				Role:      textOf(m.Role),
				EntryDate: models.String(m.Since),
			}
			if m.Person != nil {
				if p.Name == "" {
					p.Name = m.Person.Name
				}
				p.TaxID = models.String(m.Person.TaxID)
			}
			rec.Partners = append(rec.Partners, p)
		}
	}
	return rec
}
