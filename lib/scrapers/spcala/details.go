package spcala

import (
	"bytes"
	"context"
	"fmt"
	"lapets-backend/lib/htmlutil"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/scraper"
	"lapets-backend/lib/textutil"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/go-shiori/go-readability"
)

type details struct {
	photos      []string
	description string

	spayedNeutered   *bool
	houseTrained     *bool
	shotsCurrent     *bool
	goodWithChildren *bool
	goodWithDogs     *bool
	goodWithCats     *bool
}

func fetchDetails(ctx context.Context, client *resty.Client, link string) (details, error) {
	res, err := client.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		return details{}, err
	}
	if res.IsError() {
		return details{}, fmt.Errorf("GET %s: unexpected status %s", link, res.Status())
	}
	return parseDetails(res.Body(), link)
}

func parseDetails(body []byte, link string) (details, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return details{}, err
	}

	var d details
	doc.Find(".pet-gallery img, .gallery img, .pet-photos img").Each(func(_ int, img *goquery.Selection) {
		if src := htmlutil.FirstAttr(img, "", "src", "data-src"); src != "" {
			d.photos = append(d.photos, src)
		}
	})

	d.description = htmlutil.CleanText(doc.Find(".pet-description, .pet-bio, .description, .about"))
	if d.description == "" {
		pageUrl, _ := url.Parse(link)
		article, err := readability.FromReader(bytes.NewReader(body), pageUrl)
		if err == nil {
			d.description = textutil.Squash(article.TextContent)
		}
	}

	attributes := htmlutil.CleanText(doc.Find(".pet-attributes, .attributes, .details"))
	if attributes != "" {
		d.spayedNeutered = normalize.Flag(attributes, []string{"spayed", "neutered"}, []string{"not spayed", "not neutered"})
		d.houseTrained = normalize.Flag(attributes, []string{"house trained", "housebroken"}, []string{"not house trained"})
		d.shotsCurrent = normalize.Flag(attributes, []string{"vaccinated", "shots"}, []string{"not vaccinated"})
		d.goodWithChildren = normalize.Flag(attributes, []string{"kids", "children"}, []string{"no kids", "no children"})
		d.goodWithDogs = normalize.Flag(attributes, []string{"dogs"}, []string{"no dogs"})
		d.goodWithCats = normalize.Flag(attributes, []string{"cats"}, []string{"no cats"})
	}
	return d, nil
}

func (d details) apply(a *scraper.ScrapedAnimal, origin string) {
	if len(d.photos) > 0 {
		photos := make([]string, 0, len(d.photos))
		seen := map[string]bool{}
		for _, p := range d.photos {
			p = normalize.PhotoURL(origin, p)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			photos = append(photos, p)
		}
		a.Photos = photos
	}
	if d.description != "" {
		a.Description = d.description
	}

	set := func(dst **bool, v *bool) {
		if v != nil {
			*dst = v
		}
	}
	set(&a.SpayedNeutered, d.spayedNeutered)
	set(&a.HouseTrained, d.houseTrained)
	set(&a.ShotsCurrent, d.shotsCurrent)
	set(&a.GoodWithChildren, d.goodWithChildren)
	set(&a.GoodWithDogs, d.goodWithDogs)
	set(&a.GoodWithCats, d.goodWithCats)
}
