package ai

// ResolveConflictPrompt asks the model to merge two records that share an
// id but disagree on name or type. Placeholders: existing record JSON,
// proposed record JSON, connection list.
const ResolveConflictPrompt = `
# Task Context
You are a helpful assistant specialized in maintaining a knowledge graph. Two analysis runs produced conflicting records for the same graph entity. Your task is to merge them into one authoritative record.

# Background Data
Existing record:
%s

Proposed record:
%s

Connections of the existing entity in the graph:
%s

# Detailed Task Description & Rules
- Produce exactly one merged entity record.
- Keep the id of the existing record. Never invent a new id.
- Choose the name and type that best describe the real-world entity, using the graph connections as context.
- Combine both descriptions into one coherent description; do not lose information that only one record carries.
- Merge the attributes of both records. When both records set the same attribute key, prefer the proposed record's value.
- Merge the metadata of both records the same way.
- Return attributes and metadata as JSON object strings in the attributes_json and metadata_json fields. Use "{}" when there are none.

# Examples
If the existing record is named "Apple" and the proposed record is named "Apple Inc." and the connections show supplier and product edges, the merged record should be the company, named "Apple Inc.", with both records' attributes combined.
`

// MergeGroupPrompt asks the model to collapse a group of duplicate entity
// records into one canonical record. Placeholder: the record list JSON.
const MergeGroupPrompt = `
# Task Context
You are a helpful assistant specialized in maintaining a knowledge graph. Several entity records with the same name and type were produced by independent analysis runs and must be collapsed into one canonical record.

# Background Data
Duplicate records:
%s

# Detailed Task Description & Rules
- Produce exactly one canonical entity record covering the whole group.
- The id of the canonical record MUST be the id of one of the provided records. Never invent a new id.
- Write the name in its most complete, correctly cased form found in the group.
- Combine all descriptions into one coherent description without repeating the same fact twice.
- Merge the attributes of every record. When records disagree on an attribute key, prefer the most specific value.
- Merge the metadata of every record the same way.
- Return attributes and metadata as JSON object strings in the attributes_json and metadata_json fields. Use "{}" when there are none.
`

// ExtractPrompt instructs the model to extract entities and relationships
// from one text chunk. Placeholders: allowed entity types, document name,
// allowed entity types again for the rules section.
const ExtractPrompt = `
# Task Context
You are a helpful assistant specialized in building knowledge graphs from documents. You will be given one chunk of a document and must extract the entities and relationships it describes.

# Background Data
Allowed entity types: %s
Document: %s

# Detailed Task Description & Rules
- Identify every entity in the chunk that matches one of the allowed entity types: %s.
- For each entity provide its name, its type and a comprehensive description of everything the chunk says about it.
- Identify every relationship between two extracted entities. Only relate entities you extracted in this chunk.
- For each relationship provide the source entity name, the target entity name, a short lower_snake_case relationship type (e.g. "part_of", "depends_on", "works_for") and a description of why the entities are related.
- Do not invent entities or relationships that the chunk does not support.
- Keep entity names exactly as the document writes them; do not abbreviate or expand them.

# Examples
From "TensorFlow is an open source machine learning framework developed by Google" extract the entities "TensorFlow" (PRODUCT) and "Google" (ORGANIZATION) and the relationship TensorFlow -[developed_by]-> Google.
`

// SummaryPrompt produces a short document summary carried on the fragment
// for reporting. Placeholder: the document name.
const SummaryPrompt = `
# Task Context
You are a helpful assistant that summarizes documents for a knowledge graph report.

# Detailed Task Description & Rules
- Summarize the document "%s" in at most five sentences.
- Focus on the entities the document is about and how they relate to each other.
- Write plain prose without headings or lists.
`
