package models

// DisclosureToggle is one owner-controlled visibility switch.
type DisclosureToggle string

const (
	ToggleAllergies         DisclosureToggle = "allergies"
	ToggleMedications       DisclosureToggle = "medications"
	ToggleConditions        DisclosureToggle = "conditions"
	ToggleVaccinations      DisclosureToggle = "vaccinations"
	ToggleEmergencyContacts DisclosureToggle = "emergency_contacts"
)

// Toggles lists every owner-controlled switch in resolution order.
var Toggles = []DisclosureToggle{
	ToggleAllergies,
	ToggleMedications,
	ToggleConditions,
	ToggleVaccinations,
	ToggleEmergencyContacts,
}

// FieldCategory names a class of medical data a responder may see.
type FieldCategory string

const (
	FieldBloodType         FieldCategory = "blood_type"
	FieldSevereAllergies   FieldCategory = "severe_allergies"
	FieldAllergies         FieldCategory = "allergies"
	FieldMedications       FieldCategory = "medications"
	FieldConditions        FieldCategory = "conditions"
	FieldVaccinations      FieldCategory = "vaccinations"
	FieldEmergencyContacts FieldCategory = "emergency_contacts"
)

// SafetyFields are life-critical categories disclosed in every emergency
// session regardless of owner preference. Not suppressible.
var SafetyFields = []FieldCategory{FieldBloodType, FieldSevereAllergies}

// toggleFields maps each toggle to the category it controls.
var toggleFields = map[DisclosureToggle]FieldCategory{
	ToggleAllergies:         FieldAllergies,
	ToggleMedications:       FieldMedications,
	ToggleConditions:        FieldConditions,
	ToggleVaccinations:      FieldVaccinations,
	ToggleEmergencyContacts: FieldEmergencyContacts,
}

// DisclosurePolicy is an immutable snapshot of the owner's visibility
// toggles. A credential freezes the policy at issuance; later toggle edits
// only affect future credentials. Value semantics, no identity.
type DisclosurePolicy struct {
	toggles map[DisclosureToggle]bool
}

// ComputePolicy snapshots the given toggles into a policy. Pure and total:
// toggles absent from the map default to false, unknown keys are ignored.
func ComputePolicy(toggles map[DisclosureToggle]bool) DisclosurePolicy {
	snapshot := make(map[DisclosureToggle]bool, len(Toggles))
	for _, t := range Toggles {
		snapshot[t] = toggles[t]
	}
	return DisclosurePolicy{toggles: snapshot}
}

// Enabled reports whether the owner opted the toggle in.
func (p DisclosurePolicy) Enabled(t DisclosureToggle) bool {
	return p.toggles[t]
}

// Resolve returns the disclosed field categories: the safety set plus every
// enabled toggle, in stable order. Side-effect-free; the validator calls it
// per access, not once at issuance.
func (p DisclosurePolicy) Resolve() []FieldCategory {
	fields := make([]FieldCategory, 0, len(SafetyFields)+len(Toggles))
	fields = append(fields, SafetyFields...)
	for _, t := range Toggles {
		if p.toggles[t] {
			fields = append(fields, toggleFields[t])
		}
	}
	return fields
}

// ToggleMap returns a copy of the snapshot for serialization.
func (p DisclosurePolicy) ToggleMap() map[DisclosureToggle]bool {
	out := make(map[DisclosureToggle]bool, len(p.toggles))
	for k, v := range p.toggles {
		out[k] = v
	}
	return out
}

// Equal reports value equality between two policies.
func (p DisclosurePolicy) Equal(other DisclosurePolicy) bool {
	for _, t := range Toggles {
		if p.toggles[t] != other.toggles[t] {
			return false
		}
	}
	return true
}
