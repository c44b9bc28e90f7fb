package services

import (
	"fmt"
	"strings"

	domain "github.com/cardapio-field/api/internal/domain"
)

// ResolveSelection turns a map of option id to choice id into the snapshot stored on the
// cart line. Every required option needs a choice; unknown options or choices are
// rejected. Products without options ignore the selection entirely.
func ResolveSelection(product domain.Product, selection map[string]string) (map[string]domain.SelectedOption, error) {
	if len(product.Options) == 0 {
		return map[string]domain.SelectedOption{}, nil
	}

	resolved := make(map[string]domain.SelectedOption, len(selection))
	known := make(map[string]struct{}, len(product.Options))
	for _, option := range product.Options {
		known[option.ID] = struct{}{}
		choiceID := strings.TrimSpace(selection[option.ID])
		if choiceID == "" {
			if option.Required {
				return nil, fmt.Errorf("%w: option %q requires a choice", ErrCartInvalidInput, option.Name)
			}
			continue
		}
		choice, ok := findChoice(option, choiceID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown choice %q for option %q", ErrCartInvalidInput, choiceID, option.Name)
		}
		resolved[option.ID] = domain.SelectedOption{
			Name:   option.Name,
			Choice: choice.Name,
			Price:  choice.Price,
		}
	}

	for optionID := range selection {
		if _, ok := known[optionID]; !ok {
			return nil, fmt.Errorf("%w: unknown option %q", ErrCartInvalidInput, optionID)
		}
	}
	return resolved, nil
}

func findChoice(option domain.Option, choiceID string) (domain.Choice, bool) {
	for _, choice := range option.Choices {
		if choice.ID == choiceID {
			return choice, true
		}
	}
	return domain.Choice{}, false
}
