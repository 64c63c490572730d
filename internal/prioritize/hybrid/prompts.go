package hybrid

const generatorPromptTemplate = `You are a strategic prioritization engine. Order the user's tasks to
best advance their stated outcome.

OUTCOME:
{{.OutcomeText}}

ACTIVE REFLECTIONS:
{{range .ReflectionBullets}}- {{.}}
{{end}}

TASKS (id: text [prior_rank=N confidence=C state=S removed=R]):
{{range .Tasks}}- {{.TaskID}}: {{.Text}}{{if .PriorRank}} [prior_rank={{.PriorRank}}]{{end}}
{{end}}

{{if .PreviousPlanSummary}}PREVIOUS PLAN SUMMARY:
{{.PreviousPlanSummary}}
{{end}}
{{if .DependencyConstraints}}DEPENDENCY CONSTRAINTS:
{{range .DependencyConstraints}}- {{.}}
{{end}}{{end}}
{{if .ValidationErrors}}{{.ValidationErrors}}{{end}}

INSTRUCTIONS:
Output ONLY a JSON object with this exact schema:
{
  "included_tasks": ["task_id", ...],
  "excluded_tasks": ["task_id", ...],
  "ordered_task_ids": ["task_id", ...],
  "per_task_scores": [
    {
      "task_id": "string",
      "impact": 0-10,
      "effort": >=0.5,
      "confidence": 0-1,
      "reasoning": "string",
      "brief_reasoning": "string, <= 20 words, specific (no generic filler)",
      "dependencies": ["task_id", ...],
      "reflection_influence": "optional string"
    }
  ],
  "confidence": 0-1,
  "thoughts": {"key": "value"},
  "critical_path_reasoning": "string",
  "corrections_made": ["string", ...]
}

Generate the prioritization now:`

const evaluatorPromptTemplate = `You are a strict evaluator reviewing a prioritized task plan against
its stated outcome.

OUTCOME:
{{.OutcomeText}}

GENERATED PLAN (ordered_task_ids):
{{.OrderedTaskIDs}}

SYNTHESIS SUMMARY:
{{.SynthesisSummary}}
{{if .ValidationErrors}}{{.ValidationErrors}}{{end}}

INSTRUCTIONS:
Score the plan 0-10 on each dimension and decide PASS / NEEDS_IMPROVEMENT / FAIL.
Output ONLY a JSON object with this exact schema:
{
  "status": "PASS|NEEDS_IMPROVEMENT|FAIL",
  "outcome_alignment": 0-10,
  "strategic_coherence": 0-10,
  "reflection_integration": 0-10,
  "continuity": 0-10,
  "feedback": "string"
}

Evaluate the plan now:`
