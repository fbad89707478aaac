package ivc

import "github.com/jonathan/agent-factory/internal/types"

// ExtractRecords maps stage 1.1 output onto task graph rows.
func ExtractRecords(res *types.TaskExtractionResult) []types.TaskRecord {
	records := make([]types.TaskRecord, 0, len(res.TaskAtoms))
	for _, a := range res.TaskAtoms {
		records = append(records, types.TaskRecord{
			TaskID:           a.TaskID,
			OriginalSentence: &a.TaskOriginalSentence,
			LocalizedLabel:   &a.TaskKorean,
			TranslatedLabel:  a.TaskEnglish,
			Notes:            a.Notes,
		})
	}
	return records
}

// PhaseRecords maps stage 1.2 output onto task graph rows.
func PhaseRecords(res *types.PhaseClassificationResult) []types.TaskRecord {
	records := make([]types.TaskRecord, 0, len(res.IVCTasks))
	for _, t := range res.IVCTasks {
		records = append(records, types.TaskRecord{
			TaskID:               t.TaskID,
			IVCPhase:             &t.IVCPhase,
			ExecSubphase:         t.ExecSubphase,
			Primitive:            &t.PrimitiveLv1,
			ClassificationReason: types.StringPtr(t.ClassificationReason),
		})
	}
	return records
}

// StaticRecords maps stage 1.3 output onto task graph rows.
func StaticRecords(res *types.StaticClassificationResult) []types.TaskRecord {
	records := make([]types.TaskRecord, 0, len(res.TaskStaticMeta))
	for _, m := range res.TaskStaticMeta {
		rag := m.RAGRequired
		records = append(records, types.TaskRecord{
			TaskID:                  m.TaskID,
			StaticTypeLv1:           &m.StaticTypeLv1,
			StaticTypeLv2:           m.StaticTypeLv2,
			DomainLv1:               m.DomainLv1,
			DomainLv2:               m.DomainLv2,
			RAGRequired:             &rag,
			RAGReason:               m.RAGReason,
			ValueScore:              m.ValueScore,
			ComplexityScore:         m.ComplexityScore,
			ValueComplexityQuadrant: types.StringPtr(m.ValueComplexityQuadrant),
			RecommendedExecutionEnv: types.StringPtr(m.RecommendedExecutionEnv),
			AutoabilityReason:       m.AutoabilityReason,
			DataEntities:            m.DataEntities,
			Tags:                    m.Tags,
		})
	}
	return records
}
