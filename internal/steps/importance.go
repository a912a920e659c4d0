package steps

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mesh-intelligence/calltree/internal/importance"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

// SetImportance pins the importance of id. Pinned test cases are skipped by
// propagation until EnableImportanceAuto.
func (m *Mutator) SetImportance(ctx context.Context, id int64, imp types.Importance) (err error) {
	ctx, span, log := m.start(ctx, "set_importance",
		attribute.Int64("calltree.test_case_id", id),
		attribute.String("calltree.importance", imp.String()),
	)
	defer func() { m.finish(span, log, "set_importance", err) }()

	tc, err := m.store.TestCase(ctx, id)
	if err != nil {
		return err
	}
	if err := tc.PinImportance(imp); err != nil {
		return err
	}
	if err := m.store.SetImportance(ctx, id, tc.Importance); err != nil {
		return err
	}
	return m.store.SetImportanceAuto(ctx, id, false)
}

// EnableImportanceAuto turns deduction back on for id and deduces its
// importance. Callers are unaffected: their levels never depend on the
// importance of what they call, only on criticalities.
func (m *Mutator) EnableImportanceAuto(ctx context.Context, id int64) (err error) {
	ctx, span, log := m.start(ctx, "enable_importance_auto", attribute.Int64("calltree.test_case_id", id))
	defer func() { m.finish(span, log, "enable_importance_auto", err) }()

	if err := m.store.SetImportanceAuto(ctx, id, true); err != nil {
		return err
	}
	return propagationError(m.prop.Refresh(ctx, id))
}

// BindRequirement records that testCaseID verifies requirementVersionID.
func (m *Mutator) BindRequirement(ctx context.Context, testCaseID, requirementVersionID int64) (err error) {
	return m.changeLink(ctx, "bind_requirement", testCaseID, requirementVersionID, importance.LinkAdded)
}

// UnbindRequirement removes the verification link.
func (m *Mutator) UnbindRequirement(ctx context.Context, testCaseID, requirementVersionID int64) (err error) {
	return m.changeLink(ctx, "unbind_requirement", testCaseID, requirementVersionID, importance.LinkRemoved)
}

func (m *Mutator) changeLink(ctx context.Context, op string, testCaseID, requirementVersionID int64, change importance.LinkChange) (err error) {
	ctx, span, log := m.start(ctx, op,
		attribute.Int64("calltree.test_case_id", testCaseID),
		attribute.Int64("calltree.requirement_version_id", requirementVersionID),
	)
	defer func() { m.finish(span, log, op, err) }()

	rv, err := m.store.RequirementVersion(ctx, requirementVersionID)
	if err != nil {
		return err
	}
	if change == importance.LinkAdded {
		err = m.store.LinkRequirement(ctx, testCaseID, requirementVersionID)
	} else {
		err = m.store.UnlinkRequirement(ctx, testCaseID, requirementVersionID)
	}
	if err != nil {
		return err
	}
	return propagationError(m.prop.OnRequirementLinkChanged(ctx, testCaseID, rv.Criticality, change))
}

// ChangeCriticality sets the criticality of a requirement version and
// updates every test case that reaches it.
func (m *Mutator) ChangeCriticality(ctx context.Context, requirementVersionID int64, crit types.Criticality) (err error) {
	ctx, span, log := m.start(ctx, "change_criticality",
		attribute.Int64("calltree.requirement_version_id", requirementVersionID),
		attribute.String("calltree.criticality", crit.String()),
	)
	defer func() { m.finish(span, log, "change_criticality", err) }()

	rv, err := m.store.RequirementVersion(ctx, requirementVersionID)
	if err != nil {
		return err
	}
	if rv.Criticality == crit {
		return nil
	}
	if err := m.store.SetCriticality(ctx, requirementVersionID, crit); err != nil {
		return fmt.Errorf("setting criticality of %d: %w", requirementVersionID, err)
	}
	return propagationError(m.prop.OnCriticalityValueChanged(ctx, requirementVersionID, rv.Criticality))
}
