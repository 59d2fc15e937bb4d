package document

// The demo document seeded into an empty store.
const (
	DefaultDocumentID   = "default-course-001"
	DefaultDocumentName = "Project-Based Learning Guide"
)

// DefaultDocumentContent is the body of the demo guide.
const DefaultDocumentContent = `
# Project-Based Learning Guide

## Chapter 1: PBL Fundamentals
1. **What is Project-Based Learning (PBL)**: Driven by real problems, students complete projects through inquiry and collaboration.
2. **STEAM Integration**: Organically combines Science, Technology, Engineering, Arts, and Mathematics.
3. **Student-Led**: Teachers are facilitators, students are the main learners.

## Chapter 2: Course Design Principles
1. **Real Context**: Projects should relate to students' lives and solve real problems.
2. **Cross-Disciplinary Integration**: Combine multi-disciplinary knowledge to develop comprehensive skills.
3. **Process Evaluation**: Focus on the learning process, not just the results.

## Chapter 3: Assessment Criteria
1. **Innovative Thinking**: Ability to propose novel solutions.
2. **Team Collaboration**: Effective communication and division of labor in groups.
3. **Problem Solving**: Ability to analyze problems and find solutions.
4. **Presentation**: Ability to clearly present and explain their work.

## Chapter 4: Common Questions
1. **Grouping Strategy**: Recommend 4-5 people per group, mixed ability grouping.
2. **Time Arrangement**: Each project is recommended to be completed in 2-4 weeks.
3. **Resource Preparation**: Prepare material lists and safety guidelines in advance.
`
