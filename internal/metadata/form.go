package metadata

import (
	"github.com/pitabwire/marketdesk/model"
)

func resolveForm(fields []model.FieldDefinition) *model.FormDescriptor {
	out := make([]model.FieldDescriptor, len(fields))
	for i, f := range fields {
		out[i] = model.FieldDescriptor{
			Field:       f.Field,
			Label:       f.Label,
			Type:        f.Type,
			Required:    f.Required,
			CreateOnly:  f.CreateOnly,
			Placeholder: f.Placeholder,
			HelpText:    f.HelpText,
			Validation:  resolveValidation(f.Validation),
			Options:     resolveOptions(f.Options),
		}
	}
	return &model.FormDescriptor{Fields: out}
}

func resolveValidation(v *model.ValidationDefinition) *model.ValidationDescriptor {
	if v == nil {
		return nil
	}
	return &model.ValidationDescriptor{
		MinLength: v.MinLength,
		MaxLength: v.MaxLength,
		Min:       v.Min,
		Max:       v.Max,
		Pattern:   v.Pattern,
		Message:   v.Message,
	}
}

func resolveOptions(opts []model.StaticOption) []model.OptionDescriptor {
	if len(opts) == 0 {
		return nil
	}
	out := make([]model.OptionDescriptor, len(opts))
	for i, o := range opts {
		out[i] = model.OptionDescriptor{Label: o.Label, Value: o.Value}
	}
	return out
}
